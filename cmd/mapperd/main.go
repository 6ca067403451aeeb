// Command mapperd runs the mapper control node of a plantd work-dispatch
// fabric.
package main

import (
	"github.com/geoffjay/plantd-mapper/cmd/mapperd/cmd"
)

func main() {
	cmd.Execute()
}
