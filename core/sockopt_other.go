//go:build !unix

package core

import "net"

func tuneConn(c net.Conn) error {
	return nil
}
