// Package process owns the process control blocks and their state
// machine. Every transition goes through the state table; invalid
// requests fail closed with ErrInvalidTransition and leave the PCB
// untouched. The table is the only component that mutates PCBs; the
// scheduler and the kernel request transitions through its methods.
package process
