package main

import (
	"log"
	"net"
	"time"

	"github.com/haprox/ppcodec"
)

func main() {
	ep := proxyproto.New()
	ep.AddressFamily = proxyproto.AF_INET
	ep.TransportProtocol = proxyproto.SOCK_STREAM
	ep.SrcAddr = "127.0.0.1"
	ep.SrcPort = 12345
	ep.DstAddr = "127.0.0.1"
	ep.DstPort = 56789
	ep.V2CRC32CPresent = true

	raw, err := ep.EmitV2()
	if err != nil {
		log.Println("err:", err)
		return
	}

	conn, err := net.DialTimeout("tcp", "127.0.0.1:9090", time.Second*5)
	if err != nil {
		log.Println("err:", err)
		return
	}
	defer conn.Close()

	if n, err := conn.Write(raw); err != nil || n != len(raw) {
		log.Println("write PROXY header to connection fail:", err)
	}
}
