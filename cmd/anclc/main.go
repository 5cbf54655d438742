// Command anclc compiles textual IR to x86-64 assembly.
package main

import (
	"os"
)

func main() {
	os.Exit(execute(os.Args[1:]))
}
