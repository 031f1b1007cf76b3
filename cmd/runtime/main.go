// Command runtime is the openclaw-runtime binary's entrypoint.
package main

import "github.com/openclaw/runtime/cmd"

func main() {
	cmd.Execute()
}
