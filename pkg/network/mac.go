package network

import "net"

func parseMAC(mac string) (net.HardwareAddr, error) {
	return net.ParseMAC(mac)
}
