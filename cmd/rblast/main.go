// cmd/rblast/main.go
package main

import (
	"rblast/internal/app"
	"rblast/internal/appshell"
)

func main() {
	appshell.Main(app.RunContext)
}
