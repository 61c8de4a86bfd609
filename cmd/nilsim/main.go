// Command nilsim runs the nil kernel simulator and exercises the OS
// library from the command line.
package main

func main() {
	execute()
}
