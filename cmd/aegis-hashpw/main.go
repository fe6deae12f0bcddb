// Command aegis-hashpw bcrypt-hashes a password for manual insertion into
// the users table, mirroring the original aegis-manage.py workflow.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/MokshitBindal/Aegis-sub000/internal/auth"
)

// hashPassword is injectable for deterministic error-path tests.
var hashPassword = auth.HashPassword

// osExit, osArgs, and stdout are injectable so TestMain_RunsEndToEnd can exercise main()
// without exiting the test binary.
var (
	osExit = os.Exit
	osArgs = os.Args
	stdout io.Writer = os.Stdout
)

func run(args []string, out io.Writer) int {
	if len(args) < 2 {
		fmt.Fprintln(out, "Usage: aegis-hashpw <password>")
		return 1
	}

	password := args[1]
	hash, err := hashPassword(password)
	if err != nil {
		fmt.Fprintf(out, "Error: %v\n", err)
		return 1
	}

	fmt.Fprintln(out, hash)
	return 0
}

func main() {
	osExit(run(osArgs, stdout))
}
