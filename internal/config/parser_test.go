package config

import (
	"testing"

	"github.com/onsi/gomega"
)

const sampleConfig = `
server {
	listen 8080;
	listen 127.0.0.1:8443;
	server_name example.com *.example.com;
	root /var/www;
	index index.html index.htm;
	client_max_body_size 5M;
	error_page 404 /errors/404.html;

	location / {
		autoindex on;
	}

	location /upload {
		allowed_methods GET POST;
		client_max_body_size 10M;
		upload_store /var/www/uploads;
	}

	location /cgi-bin {
		cgi_pass /usr/bin/python3;
		cgi_extension .py;
		root /var/www/cgi-bin;
	}

	location /old {
		return 301 /new;
	}
}
`

func TestParseSampleConfig(t *testing.T) {
	g := gomega.NewWithT(t)

	servers, err := NewParser(sampleConfig).Parse()
	g.Expect(err).NotTo(gomega.HaveOccurred())
	g.Expect(servers).To(gomega.HaveLen(1))

	s := servers[0]
	g.Expect(s.Listen).To(gomega.Equal([]ListenEndpoint{
		{Interface: "", Port: 8080},
		{Interface: "127.0.0.1", Port: 8443},
	}))
	g.Expect(s.ServerNames).To(gomega.Equal([]string{"example.com", "*.example.com"}))
	g.Expect(s.Root).To(gomega.Equal("/var/www"))
	g.Expect(s.Index).To(gomega.Equal([]string{"index.html", "index.htm"}))
	g.Expect(s.ClientMaxBodySize).To(gomega.Equal(int64(5 * 1024 * 1024)))
	g.Expect(s.ErrorPages[404]).To(gomega.Equal("/errors/404.html"))
	g.Expect(s.Locations).To(gomega.HaveLen(4))
}

func TestParseRejectsUnknownDirective(t *testing.T) {
	g := gomega.NewWithT(t)

	_, err := NewParser("server {\n  bogus 1;\n}").Parse()
	g.Expect(err).To(gomega.HaveOccurred())
}

func TestParseRejectsDuplicateSingleValueDirective(t *testing.T) {
	g := gomega.NewWithT(t)

	_, err := NewParser("server {\n  root /a;\n  root /b;\n}").Parse()
	g.Expect(err).To(gomega.HaveOccurred())
}

func TestParseRejectsDuplicateListenAddress(t *testing.T) {
	g := gomega.NewWithT(t)

	_, err := NewParser("server {\n  listen 80;\n  listen 80;\n}").Parse()
	g.Expect(err).To(gomega.HaveOccurred())
}

func TestParseRejectsEmptyConfig(t *testing.T) {
	g := gomega.NewWithT(t)

	_, err := NewParser("").Parse()
	g.Expect(err).To(gomega.HaveOccurred())
}

func TestParseRejectsUnsupportedCgiExtension(t *testing.T) {
	g := gomega.NewWithT(t)

	_, err := NewParser("server {\n  listen 80;\n  root /a;\n  location / {\n    cgi_extension .exe;\n  }\n}").Parse()
	g.Expect(err).To(gomega.HaveOccurred())
}

func TestParseListenInterfacePort(t *testing.T) {
	g := gomega.NewWithT(t)

	servers, err := NewParser("server {\n  listen 10.0.0.1:9000;\n  root /a;\n}").Parse()
	g.Expect(err).NotTo(gomega.HaveOccurred())
	g.Expect(servers[0].Listen[0]).To(gomega.Equal(ListenEndpoint{Interface: "10.0.0.1", Port: 9000}))
}

func TestParseSizeSuffixes(t *testing.T) {
	g := gomega.NewWithT(t)

	cases := map[string]int64{
		"100":  100,
		"10K":  10 * 1024,
		"10M":  10 * 1024 * 1024,
		"1G":   1 << 30,
	}
	for raw, want := range cases {
		got, err := parseSize(Token{Value: raw})
		g.Expect(err).NotTo(gomega.HaveOccurred())
		g.Expect(got).To(gomega.Equal(want))
	}
}
