package importer

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/lead-intel/internal/apperr"
	"github.com/sells-group/lead-intel/internal/geo"
	"github.com/sells-group/lead-intel/internal/model"
	"github.com/sells-group/lead-intel/internal/store"
)

var fixedNow = time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)

const extractCSV = `documento;razao_social;municipio;uf;latitude;longitude;nome_fazenda;numero_inmetro;situacao;data_ultima_verificacao;data_proxima_verificacao
11.222.333/0001-81;Agro Boa Vista Ltda;Rio Verde;GO;-17,79;-50,92;Fazenda Boa Vista;INM-1;aprovado;10/01/2025;10/01/2026
11.222.333/0001-81;Agro Boa Vista Ltda;Rio Verde;GO;-17,79;-50,92;Fazenda Boa Vista;INM-2;reprovado;05/01/2026;
11.222.333/0001-81;Agro Boa Vista Ltda;Jatai;GO;;;Fazenda Santa Rita;INM-3;;;
529.982.247-25;Maria Souza;Goiania;GO;;;;INM-4;aprovado;;01/12/2026
999;Documento Ruim;;;;;;INM-5;;;
`

func newImporter(st Store, r Rescorer, opts ...Option) *Importer {
	fetcher := NewFetcher("", 2*time.Second)
	fetcher.Retry.Sleep = func(context.Context, time.Duration) error { return nil }
	opts = append([]Option{
		WithClock(func() time.Time { return fixedNow }),
		WithFetcher(fetcher),
		WithBase(geo.Base{Latitude: -17.79, Longitude: -50.92}),
	}, opts...)
	return New(st, r, opts...)
}

func ownersByDoc(t *testing.T, st *store.SQLiteStore) map[string]model.Owner {
	t.Helper()
	owners, err := st.AllOwners(context.Background())
	require.NoError(t, err)
	out := make(map[string]model.Owner, len(owners))
	for _, o := range owners {
		out[o.Document] = o
	}
	return out
}

func TestImport_CSV(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)
	rescorer := &fakeRescorer{}
	im := newImporter(st, rescorer)

	res, err := im.Import(ctx, writeFile(t, "extract.csv", []byte(extractCSV)), Options{})
	require.NoError(t, err)

	assert.Equal(t, 5, res.Rows)
	assert.Equal(t, 1, res.Rejected)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, 6, res.Errors[0].Line)
	assert.Equal(t, 2, res.OwnersCreated)
	assert.Equal(t, 0, res.OwnersUpdated)
	assert.Equal(t, 3, res.Locations)
	assert.Equal(t, 4, res.Instruments)
	assert.Equal(t, 4, res.NewInstruments)
	assert.Equal(t, 2, res.Rescored)

	owners := ownersByDoc(t, st)
	require.Len(t, owners, 2)
	agro := owners[cnpjA]
	assert.Equal(t, model.OwnerTypePJ, agro.Type)
	assert.Equal(t, model.LeadStatusNew, agro.LeadStatus)
	assert.ElementsMatch(t, []int64{agro.ID, owners[cpfA].ID}, rescorer.ids)

	locs, err := st.ListLocations(ctx, agro.ID)
	require.NoError(t, err)
	require.Len(t, locs, 2)
	for _, l := range locs {
		if l.FarmName == "Fazenda Boa Vista" {
			require.NotNil(t, l.DistanceFromBaseKM)
			assert.Equal(t, 0.0, *l.DistanceFromBaseKM)
		} else {
			assert.Nil(t, l.DistanceFromBaseKM)
		}
	}

	ids, err := st.InstrumentIDs(ctx, []string{"INM-1", "INM-2"})
	require.NoError(t, err)
	hist, err := st.ListHistory(ctx, ids["INM-1"])
	require.NoError(t, err)
	require.Len(t, hist, 1)
	assert.Equal(t, model.HistoryInitial, hist[0].EventType)
	assert.Equal(t, "approved", hist[0].Result)
	assert.True(t, hist[0].EventDate.Equal(time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC)))

	job, err := st.GetJob(ctx, res.JobID)
	require.NoError(t, err)
	assert.Equal(t, model.JobImport, job.Kind)
	assert.Equal(t, model.JobCompleted, job.Status)
	assert.Equal(t, 5, job.Total)
	assert.Equal(t, 4, job.Succeeded)
	assert.Equal(t, 1, job.Failed)
}

func TestImport_RerunAddsNoHistory(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)
	im := newImporter(st, &fakeRescorer{})
	path := writeFile(t, "extract.csv", []byte(extractCSV))

	_, err := im.Import(ctx, path, Options{})
	require.NoError(t, err)
	res, err := im.Import(ctx, path, Options{BatchSize: 2})
	require.NoError(t, err)

	assert.Equal(t, 0, res.OwnersCreated)
	assert.Equal(t, 2, res.OwnersUpdated)
	assert.Equal(t, 0, res.NewInstruments)
	assert.Len(t, ownersByDoc(t, st), 2)

	ids, err := st.InstrumentIDs(ctx, []string{"INM-2"})
	require.NoError(t, err)
	hist, err := st.ListHistory(ctx, ids["INM-2"])
	require.NoError(t, err)
	assert.Len(t, hist, 1)
}

func TestImport_DuplicateInstrumentLastRowWins(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)
	csv := "documento,nome,numero_inmetro,situacao\n" +
		cpfA + ",Maria,INM-9,aprovado\n" +
		cpfA + ",Maria,INM-9,reprovado\n"

	res, err := newImporter(st, nil).Import(ctx, writeFile(t, "dup.csv", []byte(csv)), Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Instruments)
	assert.Equal(t, 1, res.NewInstruments)
	assert.Equal(t, 0, res.Rescored)

	owner := ownersByDoc(t, st)[cpfA]
	instruments, err := st.ListInstruments(ctx, owner.ID)
	require.NoError(t, err)
	require.Len(t, instruments, 1)
	assert.Equal(t, model.InstrumentRejected, instruments[0].CurrentStatus)
}

func TestImport_XLSX(t *testing.T) {
	st := newStore(t)
	path := writeXLSX(t, "Planilha1", [][]string{
		{"CNPJ", "Razão Social", "Número INMETRO", "Validade"},
		{"11.444.777/0001-61", "Cerealista Norte", "INM-7", "45444"},
	})

	res, err := newImporter(st, &fakeRescorer{}).Import(context.Background(), path, Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, res.OwnersCreated)
	assert.Equal(t, 1, res.NewInstruments)

	owner := ownersByDoc(t, st)[cnpjB]
	assert.Equal(t, "Cerealista Norte", owner.LegalName)
	instruments, err := st.ListInstruments(context.Background(), owner.ID)
	require.NoError(t, err)
	require.Len(t, instruments, 1)
	require.NotNil(t, instruments[0].NextVerificationAt)
	assert.Equal(t, "2024-06-01", instruments[0].NextVerificationAt.Format(model.DateLayout))
}

func TestImport_HTTPSource(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		assert.Equal(t, "/extracts/registro.csv", r.URL.Path)
		fmt.Fprint(w, extractCSV) //nolint:errcheck
	}))
	defer srv.Close()

	st := newStore(t)
	res, err := newImporter(st, &fakeRescorer{}).Import(context.Background(), srv.URL+"/extracts/registro.csv", Options{})
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, 2, res.OwnersCreated)
}

func TestImport_HTTPSourceNotFound(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	_, err := newImporter(newStore(t), nil).Import(context.Background(), srv.URL+"/missing.csv", Options{})
	require.Error(t, err)
	assert.Equal(t, apperr.KindUpstream, apperr.KindOf(err))
	assert.Contains(t, err.Error(), "unexpected status 404")
}

func TestImport_FTPSource(t *testing.T) {
	srv := newFTPServer(t, map[string]string{"/pub/registro.csv": extractCSV})

	st := newStore(t)
	res, err := newImporter(st, &fakeRescorer{}).Import(context.Background(),
		fmt.Sprintf("ftp://loader:secret@%s/pub/registro.csv", srv.addr()), Options{})
	require.NoError(t, err)
	assert.Equal(t, 2, res.OwnersCreated)
	assert.Equal(t, []string{"loader"}, srv.loggedIn())
}

func TestImport_StoreFailureFailsJob(t *testing.T) {
	st := newStore(t)
	im := newImporter(&failingStore{SQLiteStore: st}, nil)

	res, err := im.Import(context.Background(), writeFile(t, "extract.csv", []byte(extractCSV)), Options{})
	require.Error(t, err)
	require.NotNil(t, res)

	job, err := st.GetJob(context.Background(), res.JobID)
	require.NoError(t, err)
	assert.Equal(t, model.JobFailed, job.Status)
	assert.True(t, strings.Contains(job.Error, "upsert owner"))
}

func TestImport_MissingSource(t *testing.T) {
	_, err := newImporter(newStore(t), nil).Import(context.Background(), "/nonexistent/extract.csv", Options{})
	require.Error(t, err)
	_, err = newImporter(newStore(t), nil).Import(context.Background(), "s3://bucket/extract.csv", Options{})
	assert.ErrorContains(t, err, "unsupported source scheme")
}

func TestParseFTPURL(t *testing.T) {
	tests := []struct {
		name     string
		url      string
		host     string
		path     string
		user     string
		pass     string
		hasError bool
	}{
		{name: "default port anonymous", url: "ftp://ftp.example.gov.br/dados/registro.csv", host: "ftp.example.gov.br:21", path: "/dados/registro.csv", user: "anonymous", pass: "anonymous@"},
		{name: "explicit port and credentials", url: "ftp://u:p@10.0.0.1:2121/a.xlsx", host: "10.0.0.1:2121", path: "/a.xlsx", user: "u", pass: "p"},
		{name: "wrong scheme", url: "http://example.com/a.csv", hasError: true},
		{name: "empty path", url: "ftp://example.com", hasError: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			host, path, user, pass, err := parseFTPURL(tt.url)
			if tt.hasError {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.host, host)
			assert.Equal(t, tt.path, path)
			assert.Equal(t, tt.user, user)
			assert.Equal(t, tt.pass, pass)
		})
	}
}

type failingStore struct {
	*store.SQLiteStore
}

func (f *failingStore) UpsertOwner(context.Context, *model.Owner) (bool, error) {
	return false, fmt.Errorf("disk full")
}
