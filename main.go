package main

import "github.com/prepstream/shipment-relay/cmd"

func main() {
	cmd.Execute()
}
