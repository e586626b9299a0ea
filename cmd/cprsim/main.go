// Command cprsim loads an ARM64 ELF binary and either emulates it
// functionally or drives it through the cycle-accurate out-of-order
// core model, reporting an exit code and (in timing mode) a cycle/CPI
// breakdown.
package main

func main() {
	Execute()
}
