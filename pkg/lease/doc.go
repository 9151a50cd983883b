/*
Package lease implements named mutual-exclusion slots with fencing
tokens, generalizing the cluster join-token pattern into a
preemption-safe lock: reacquiring an expired lease bumps its fencing
token, and any mutation that carries a stale token is rejected so an
expired or preempted holder cannot corrupt data after recovery.
*/
package lease
