package config

import (
	"testing"

	"github.com/onsi/gomega"
)

func loadString(g *gomega.WithT, src string) ([]ServerConfig, error) {
	servers, err := NewParser(src).Parse()
	if err != nil {
		return nil, err
	}
	resolveInheritance(servers)
	return servers, Validate(servers)
}

func TestValidateRejectsLocationWithoutRoot(t *testing.T) {
	g := gomega.NewWithT(t)

	_, err := loadString(g, `
server {
	listen 80;
	location / {
	}
}
`)
	g.Expect(err).To(gomega.HaveOccurred())
}

func TestValidateRejectsErrorPageCodeOutOfRange(t *testing.T) {
	g := gomega.NewWithT(t)

	_, err := loadString(g, `
server {
	listen 80;
	root /srv;
	error_page 200 /ok.html;
	location / {
	}
}
`)
	g.Expect(err).To(gomega.HaveOccurred())
}

func TestValidateRejectsBareRedirectTarget(t *testing.T) {
	g := gomega.NewWithT(t)

	_, err := loadString(g, `
server {
	listen 80;
	root /srv;
	location /old {
		return 302 new-page;
	}
}
`)
	g.Expect(err).To(gomega.HaveOccurred())
}

func TestValidateAcceptsWellFormedConfig(t *testing.T) {
	g := gomega.NewWithT(t)

	servers, err := loadString(g, `
server {
	listen 80;
	root /srv;
	location / {
	}
	location /old {
		return 302 /new;
	}
}
`)
	g.Expect(err).NotTo(gomega.HaveOccurred())
	g.Expect(servers).To(gomega.HaveLen(1))
}
