package fetcher

import (
	"io"
	"net"
	"path"
	"time"

	"github.com/jlaffaye/ftp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/yavzali/catalogwatch/internal/config"
)

// FTPFetcher retrieves retailer product feed files over FTP.
type FTPFetcher struct {
	cfg     config.FeedConfig
	timeout time.Duration
}

// NewFTPFetcher creates an FTPFetcher from feed configuration.
func NewFTPFetcher(cfg config.FeedConfig) *FTPFetcher {
	return &FTPFetcher{cfg: cfg, timeout: 30 * time.Second}
}

// ftpConnReader wraps an FTP response and connection so that closing the
// reader also closes the FTP response and disconnects from the server.
type ftpConnReader struct {
	resp *ftp.Response
	conn *ftp.ServerConn
}

func (r *ftpConnReader) Read(p []byte) (int, error) {
	return r.resp.Read(p)
}

func (r *ftpConnReader) Close() error {
	respErr := r.resp.Close()
	quitErr := r.conn.Quit()
	if respErr != nil {
		return eris.Wrap(respErr, "close ftp response")
	}
	if quitErr != nil {
		return eris.Wrap(quitErr, "quit ftp connection")
	}
	return nil
}

// Fetch connects to the configured feed server and retrieves the named feed
// file. The caller must close the returned ReadCloser to release the
// connection.
func (f *FTPFetcher) Fetch(filename string) (io.ReadCloser, error) {
	host := f.cfg.Host
	if _, _, err := net.SplitHostPort(host); err != nil {
		host = net.JoinHostPort(host, "21")
	}
	remote := path.Join(f.cfg.Path, filename)

	zap.L().Debug("ftp: connecting", zap.String("host", host), zap.String("path", remote))

	conn, err := ftp.Dial(host, ftp.DialWithTimeout(f.timeout))
	if err != nil {
		return nil, eris.Wrapf(err, "ftp: dial %s", host)
	}

	user := f.cfg.User
	if user == "" {
		user = "anonymous"
	}
	if err := conn.Login(user, f.cfg.Password); err != nil {
		_ = conn.Quit()
		return nil, eris.Wrap(err, "ftp: login")
	}

	resp, err := conn.Retr(remote)
	if err != nil {
		_ = conn.Quit()
		return nil, eris.Wrapf(err, "ftp: retrieve %s", remote)
	}

	return &ftpConnReader{resp: resp, conn: conn}, nil
}
