package engine

import (
	"syscall"
	"testing"

	"github.com/onsi/gomega"

	"github.com/School42/webserv/internal/config"
)

func TestCollectListenEndpointsDedupsSharedEndpoint(t *testing.T) {
	g := gomega.NewWithT(t)

	servers := []config.ServerConfig{
		{Listen: []config.ListenEndpoint{{Interface: "0.0.0.0", Port: 8080}}},
		{Listen: []config.ListenEndpoint{{Interface: "0.0.0.0", Port: 8080}, {Interface: "0.0.0.0", Port: 8081}}},
	}

	endpoints := collectListenEndpoints(servers)
	g.Expect(endpoints).To(gomega.HaveLen(2))
}

func TestCollectListenEndpointsKeepsDistinctInterfaces(t *testing.T) {
	g := gomega.NewWithT(t)

	servers := []config.ServerConfig{
		{Listen: []config.ListenEndpoint{{Interface: "127.0.0.1", Port: 8080}}},
		{Listen: []config.ListenEndpoint{{Interface: "0.0.0.0", Port: 8080}}},
	}

	endpoints := collectListenEndpoints(servers)
	g.Expect(endpoints).To(gomega.HaveLen(2))
}

func TestPeerAddrDecodesIPv4Sockaddr(t *testing.T) {
	g := gomega.NewWithT(t)

	sa := &syscall.SockaddrInet4{Port: 54321, Addr: [4]byte{192, 168, 1, 42}}
	ip, port := peerAddr(sa)
	g.Expect(ip).To(gomega.Equal("192.168.1.42"))
	g.Expect(port).To(gomega.Equal(54321))
}

func TestPeerAddrReturnsZeroValueForUnknownSockaddrType(t *testing.T) {
	g := gomega.NewWithT(t)

	ip, port := peerAddr(nil)
	g.Expect(ip).To(gomega.Equal(""))
	g.Expect(port).To(gomega.Equal(0))
}
