// Command auditctl is the operator CLI for the audit trail: chain verification,
// statistics, compliance reports, retention purges and token minting.
package main

import "os"

func main() {
	if err := rootCmd(openPostgres).Execute(); err != nil {
		os.Exit(1)
	}
}
