package proxy

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"

	"github.com/elazarl/goproxy"
	"github.com/inconshreveable/go-vhost"
	"github.com/sirupsen/logrus"

	"github.com/iTrooz/bandcache/internal/config"
)

func loadCertificate(cfg *config.Config) (*tls.Certificate, error) {
	if cfg.Server.HTTPS.CACertFile == "" || cfg.Server.HTTPS.CAKeyFile == "" {
		logrus.Debugf("No CA certificate configured, using goproxy default certificate")
		return nil, nil // Use default goproxy certificate
	}

	cert, err := tls.LoadX509KeyPair(cfg.Server.HTTPS.CACertFile, cfg.Server.HTTPS.CAKeyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load CA certificate and key: %w", err)
	}
	logrus.Debugf("Loaded CA certificate from %s", cfg.Server.HTTPS.CACertFile)
	return &cert, nil
}

func (s *Server) setupHTTPSProxyHandler() error {
	caCert, err := loadCertificate(s.config)
	if err != nil {
		return err
	}

	s.proxy.CertStore = newCertStore()

	if caCert == nil {
		logrus.Warnf("TLS interception enabled but no CA certificate loaded, using goproxy default certificate")
		s.proxy.OnRequest().HandleConnect(goproxy.AlwaysMitm)
		return nil
	}

	// Make goproxy use our provided CA certificate
	customCaMitm := &goproxy.ConnectAction{
		Action:    goproxy.ConnectMitm,
		TLSConfig: goproxy.TLSConfigFromCA(caCert),
	}
	customAlwaysMitm := goproxy.FuncHttpsHandler(func(host string, ctx *goproxy.ProxyCtx) (*goproxy.ConnectAction, string) {
		logrus.Debugf("Handling CONNECT request for %s", host)
		return customCaMitm, host
	})
	s.proxy.OnRequest().HandleConnect(customAlwaysMitm)
	return nil
}

// StartTransparentHTTPS accepts redirected TLS connections on httpsAddr and
// routes them through the MITM handler using the SNI host name. It returns
// when ctx is cancelled.
func (s *Server) StartTransparentHTTPS(ctx context.Context, httpsAddr string) error {
	ln, err := net.Listen("tcp", httpsAddr)
	if err != nil {
		return fmt.Errorf("error listening for https connections: %w", err)
	}
	logrus.Infof("Transparent HTTPS listening on %s", ln.Addr())

	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	for {
		c, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			logrus.Warnf("Error accepting new connection: %v", err)
			continue
		}
		go s.serveTransparent(c)
	}
}

func (s *Server) serveTransparent(c net.Conn) {
	tlsConn, err := vhost.TLS(c)
	if err != nil {
		logrus.Warnf("Error reading TLS client hello from %s: %v", c.RemoteAddr(), err)
		_ = c.Close()
		return
	}
	if tlsConn.Host() == "" {
		logrus.Warnf("Cannot support non-SNI enabled clients (%s)", c.RemoteAddr())
		_ = tlsConn.Close()
		return
	}

	connectReq := &http.Request{
		Method: http.MethodConnect,
		URL: &url.URL{
			Opaque: tlsConn.Host(),
			Host:   net.JoinHostPort(tlsConn.Host(), "443"),
		},
		Host:       tlsConn.Host(),
		Header:     make(http.Header),
		RemoteAddr: c.RemoteAddr().String(),
	}
	s.proxy.ServeHTTP(dumbResponseWriter{tlsConn}, connectReq)
}
