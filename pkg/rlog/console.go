package rlog

import "fmt"

// Section prints a boxed section header to stdout for demo-binary output.
func Section(title string) {
	border := "═══════════════════════════════════════════════════════════"
	fmt.Printf("\n╔%s╗\n", border)
	fmt.Printf("║ %-57s ║\n", title)
	fmt.Printf("╚%s╝\n\n", border)
}

// Banner prints the application banner used by the demo binaries.
func Banner(title, version string) {
	banner := `
╔═══════════════════════════════════════════════════════════╗
║                      r i p n e t                          ║
║              %-37s║
║                    version %-7s               ║
╚═══════════════════════════════════════════════════════════╝
`
	fmt.Printf(banner, title, version)
}
