// Command snoopsim runs a cycle-accurate snooping-coherence simulation
// over a fixed set of per-core instruction traces and prints the
// resulting execution report.
package main

func main() {
	Execute()
}
