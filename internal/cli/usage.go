// internal/cli/usage.go
package cli

import (
	"flag"
	"fmt"
	"io"

	"rblast/internal/version"
)

func installUsage(fs *flag.FlagSet, name string) {
	fs.Usage = func() {
		out := fs.Output()
		def := func(flagName string) string {
			if f := fs.Lookup(flagName); f != nil {
				return f.DefValue
			}
			return ""
		}

		fmt.Fprintf(out, "%s – batch remote BLAST with resume\n\n", name)
		fmt.Fprintf(out, "Version: %s\n\n", version.Version)
		fmt.Fprintf(out, "Usage: %s [flags] -in query.fa -o hits.xml\n", name)
		fmt.Fprintf(out, "       %s [flags] -o hits.xml query.fa\n", name)

		fmt.Fprintln(out, "\nInput / output:")
		fmt.Fprintln(out, "  -in, --input file           FASTA file with query sequences [*]")
		fmt.Fprintln(out, "  -o, --output file           Merged output file [*]")
		fmt.Fprintln(out, "  -y, --yes                   Overwrite an existing output without asking")
		fmt.Fprintln(out, "      --resume                Continue from <input>.resume if present")

		fmt.Fprintln(out, "\nSearch:")
		fmt.Fprintf(out, "  -b, --program string        blastn | blastp | blastx | tblastn | tblastx [%s]\n", def("program"))
		fmt.Fprintf(out, "  -db, --database string      Database to search [%s]\n", def("database"))
		fmt.Fprintf(out, "  -e, --evalue string         Expect threshold, decimal or scientific [%s]\n", def("evalue"))
		fmt.Fprintf(out, "  -hit, --hitlist int         Max hits per query [%s]\n", def("hitlist"))
		fmt.Fprintf(out, "  -outfmt, --format string    HTML | Text | ASN.1 | XML [%s]\n", def("format"))
		fmt.Fprintf(out, "      --search-timeout dur    Limit for one search, 0 = none [%s]\n", def("search-timeout"))

		fmt.Fprintln(out, "\nService:")
		fmt.Fprintf(out, "      --endpoint url          BLAST URL API [%s]\n", def("endpoint"))
		fmt.Fprintln(out, "      --email string          Contact e-mail sent to NCBI (env NCBI_EMAIL)")
		fmt.Fprintf(out, "      --tool string           Tool name sent to NCBI [%s]\n", def("tool"))
		fmt.Fprintln(out, "      --api-key string        NCBI API key (env NCBI_API_KEY)")
		fmt.Fprintf(out, "      --http-timeout dur      Limit for one HTTP request [%s]\n", def("http-timeout"))
		fmt.Fprintf(out, "      --poll-interval dur     Delay between status checks [%s]\n", def("poll-interval"))
		fmt.Fprintf(out, "      --rpm int               Max requests per minute, 0 = unlimited [%s]\n", def("rpm"))

		fmt.Fprintln(out, "\nDispatch:")
		fmt.Fprintf(out, "  -p, --procs int             Concurrent searches per batch [%s]\n", def("procs"))
		fmt.Fprintf(out, "      --max-restarts int      Restarts after a failed batch, -1 = unbounded [%s]\n", def("max-restarts"))
		fmt.Fprintf(out, "      --restart-delay dur     First restart delay, doubled each time [%s]\n", def("restart-delay"))
		fmt.Fprintf(out, "      --restart-max-delay dur Cap on the restart delay [%s]\n", def("restart-max-delay"))
		fmt.Fprintln(out, "      --journal file          SQLite run journal")

		fmt.Fprintln(out, "\nMiscellaneous:")
		fmt.Fprintln(out, "      --config file           YAML defaults for flags not given")
		fmt.Fprintf(out, "      --log-level string      trace | debug | info | warn | error | off [%s]\n", def("log-level"))
		fmt.Fprintln(out, "      --log-json              JSON log lines")
		fmt.Fprintln(out, "  -q, --quiet                 No progress bar or warnings")
		fmt.Fprintln(out, "      --examples              Print quickstart examples and exit")
		fmt.Fprintln(out, "  -v, --version               Print version and exit")
		fmt.Fprintln(out, "  -h, --help                  Show this help and exit")
	}
}

// PrintExamples prints a short quickstart followed by a pointer to --help.
func PrintExamples(out io.Writer, name string) {
	if out == nil {
		return
	}
	_, _ = fmt.Fprintf(out, "%s — quickstart\n\n", name)
	_, _ = fmt.Fprintf(out, "  # nucleotide queries against nt, 5 at a time\n")
	_, _ = fmt.Fprintf(out, "  %s -in reads.fa -db nt -p 5 -o reads.xml\n\n", name)
	_, _ = fmt.Fprintf(out, "  # proteins, tabular-ish text report, strict threshold\n")
	_, _ = fmt.Fprintf(out, "  %s -b blastp -db swissprot -e 1e-10 -outfmt Text -o hits.txt prot.fa\n\n", name)
	_, _ = fmt.Fprintf(out, "  # pick up an interrupted run, keeping a journal of failures\n")
	_, _ = fmt.Fprintf(out, "  %s --resume --journal runs.db -y -in reads.fa -o reads.xml\n", name)
	_, _ = fmt.Fprintln(out, "\nTip: run with --help for all flags.")
}
