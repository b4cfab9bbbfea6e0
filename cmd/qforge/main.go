// Command qforge runs dependency-ordered task workflows across a worker pool
// and optimizes how their tasks are grouped.
package main

func main() {
	Execute()
}
