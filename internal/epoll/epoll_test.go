package epoll

import (
	"syscall"
	"testing"

	"github.com/onsi/gomega"
)

func socketpair(g *gomega.WithT) (a, b int) {
	fds, err := syscall.Socketpair(syscall.AF_UNIX, syscall.SOCK_STREAM, 0)
	g.Expect(err).NotTo(gomega.HaveOccurred())
	g.Expect(syscall.SetNonblock(fds[0], true)).To(gomega.Succeed())
	g.Expect(syscall.SetNonblock(fds[1], true)).To(gomega.Succeed())
	return fds[0], fds[1]
}

func TestAddAndWaitReportsReadable(t *testing.T) {
	g := gomega.NewWithT(t)

	p, err := New()
	g.Expect(err).NotTo(gomega.HaveOccurred())
	defer p.Close()

	a, b := socketpair(g)
	defer syscall.Close(a)
	defer syscall.Close(b)

	g.Expect(p.Add(a, Readable)).To(gomega.Succeed())

	_, err = syscall.Write(b, []byte("hi"))
	g.Expect(err).NotTo(gomega.HaveOccurred())

	ready, err := p.Wait(1000, nil)
	g.Expect(err).NotTo(gomega.HaveOccurred())
	g.Expect(ready).To(gomega.HaveLen(1))
	g.Expect(ready[0].Fd).To(gomega.Equal(a))
	g.Expect(ready[0].Events & Readable).To(gomega.Equal(Readable))
}

func TestPeerCloseIsDeliveredWithReadableOnlyInterest(t *testing.T) {
	g := gomega.NewWithT(t)

	p, err := New()
	g.Expect(err).NotTo(gomega.HaveOccurred())
	defer p.Close()

	a, b := socketpair(g)
	defer syscall.Close(a)

	g.Expect(p.Add(a, Readable)).To(gomega.Succeed())
	g.Expect(syscall.Close(b)).To(gomega.Succeed())

	ready, err := p.Wait(1000, nil)
	g.Expect(err).NotTo(gomega.HaveOccurred())
	g.Expect(ready).To(gomega.HaveLen(1))
	g.Expect(ready[0].Events & (PeerClosed | Readable)).NotTo(gomega.BeZero())
}

func TestRemoveOnAlreadyClosedFdDoesNotError(t *testing.T) {
	g := gomega.NewWithT(t)

	p, err := New()
	g.Expect(err).NotTo(gomega.HaveOccurred())
	defer p.Close()

	a, b := socketpair(g)
	defer syscall.Close(b)

	g.Expect(p.Add(a, Readable)).To(gomega.Succeed())
	g.Expect(syscall.Close(a)).To(gomega.Succeed())

	g.Expect(p.Remove(a)).To(gomega.Succeed())
}

func TestModifyChangesInterest(t *testing.T) {
	g := gomega.NewWithT(t)

	p, err := New()
	g.Expect(err).NotTo(gomega.HaveOccurred())
	defer p.Close()

	a, b := socketpair(g)
	defer syscall.Close(a)
	defer syscall.Close(b)

	g.Expect(p.Add(a, Readable)).To(gomega.Succeed())
	g.Expect(p.Modify(a, Writable)).To(gomega.Succeed())

	ready, err := p.Wait(1000, nil)
	g.Expect(err).NotTo(gomega.HaveOccurred())
	g.Expect(ready).To(gomega.HaveLen(1))
	g.Expect(ready[0].Events & Writable).To(gomega.Equal(Writable))
}
