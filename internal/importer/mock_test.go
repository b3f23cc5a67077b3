package importer

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/lead-intel/internal/scoring"
	"github.com/sells-group/lead-intel/internal/store"
)

// Valid check digits.
const (
	cnpjA = "11222333000181"
	cnpjB = "11444777000161"
	cpfA  = "52998224725"
)

type fakeRescorer struct {
	mu  sync.Mutex
	ids []int64
}

func (f *fakeRescorer) RefreshPriority(_ context.Context, id int64) (scoring.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ids = append(f.ids, id)
	return scoring.Result{}, nil
}

func newStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "import.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

func writeXLSX(t *testing.T, sheetName string, rows [][]string) string {
	t.Helper()
	f := xlsx.NewFile()
	sheet, err := f.AddSheet(sheetName)
	require.NoError(t, err)
	for _, r := range rows {
		row := sheet.AddRow()
		for _, v := range r {
			row.AddCell().SetString(v)
		}
	}
	path := filepath.Join(t.TempDir(), "extract.xlsx")
	require.NoError(t, f.Save(path))
	return path
}

// ftpServer speaks just enough FTP for one passive-mode RETR per session.
type ftpServer struct {
	ln    net.Listener
	files map[string]string
	wg    sync.WaitGroup

	mu    sync.Mutex
	users []string
}

func newFTPServer(t *testing.T, files map[string]string) *ftpServer {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	s := &ftpServer{ln: ln, files: files}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			s.wg.Add(1)
			go s.handle(conn)
		}
	}()
	t.Cleanup(func() {
		ln.Close() //nolint:errcheck
		s.wg.Wait()
	})
	return s
}

func (s *ftpServer) addr() string { return s.ln.Addr().String() }

func (s *ftpServer) loggedIn() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.users...)
}

func (s *ftpServer) handle(conn net.Conn) {
	defer s.wg.Done()
	defer conn.Close()                                 //nolint:errcheck
	conn.SetDeadline(time.Now().Add(10 * time.Second)) //nolint:errcheck

	w := bufio.NewWriter(conn)
	r := bufio.NewReader(conn)
	reply := func(format string, args ...any) {
		fmt.Fprintf(w, format+"\r\n", args...) //nolint:errcheck
		w.Flush()                              //nolint:errcheck
	}
	reply("220 ready")

	var data net.Listener
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return
		}
		cmd, arg, _ := strings.Cut(strings.TrimSpace(line), " ")
		switch strings.ToUpper(cmd) {
		case "USER":
			s.mu.Lock()
			s.users = append(s.users, arg)
			s.mu.Unlock()
			reply("331 password required")
		case "PASS":
			reply("230 logged in")
		case "FEAT":
			reply("211 no features")
		case "TYPE", "OPTS":
			reply("200 ok")
		case "EPSV":
			data, err = net.Listen("tcp", "127.0.0.1:0")
			if err != nil {
				reply("425 no data connection")
				continue
			}
			reply("229 Entering Extended Passive Mode (|||%d|)", data.Addr().(*net.TCPAddr).Port)
		case "RETR":
			content, ok := s.files[arg]
			if data == nil || !ok {
				reply("550 not found")
				continue
			}
			reply("150 opening data connection")
			dc, err := data.Accept()
			if err != nil {
				reply("425 no data connection")
				continue
			}
			io.WriteString(dc, content) //nolint:errcheck
			dc.Close()                  //nolint:errcheck
			data.Close()                //nolint:errcheck
			data = nil
			reply("226 transfer complete")
		case "QUIT":
			reply("221 bye")
			return
		default:
			reply("502 not implemented")
		}
	}
}
