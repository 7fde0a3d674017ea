// Command livedepth runs the real-time monocular depth pipeline.
package main

func main() {
	Execute()
}
