// drowse: drowsiness detector service.
// Receives face landmarks, tracks eye closure and speaks a warning when the
// driver stays drowsy.
package main

func main() {
	Execute()
}
