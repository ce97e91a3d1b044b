// Command orchestrator runs an AI engineering team against a task board.
package main

func main() {
	Execute()
}
