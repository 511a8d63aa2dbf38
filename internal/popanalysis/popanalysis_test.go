package popanalysis

import (
	"bytes"
	"compress/gzip"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vaspflow/pkg/errors"
)

const acfFixture = `    #         X           Y           Z       CHARGE      MIN DIST   ATOMIC VOL
 --------------------------------------------------------------------------------
    1    0.000000    0.000000    0.000000    11.124903     1.331738    14.147608
    2    1.807500    1.807500    0.000000    10.875097     1.331738    15.010820
 --------------------------------------------------------------------------------
    VACUUM CHARGE:               0.0120
    VACUUM VOLUME:               1.5000
    NUMBER OF ELECTRONS:        22.00000
`

func TestParseACF(t *testing.T) {
	charges, summary, err := parseACF(acfFixture)
	require.NoError(t, err)

	assert.Equal(t, []float64{11.124903, 10.875097}, charges)
	assert.Equal(t, []float64{1.331738, 1.331738}, summary.MinDists)
	assert.Equal(t, []float64{14.147608, 15.010820}, summary.AtomicVolumes)
	assert.InDelta(t, 0.012, summary.VacuumCharge, 1e-9)
	assert.InDelta(t, 1.5, summary.VacuumVolume, 1e-9)
	assert.InDelta(t, 22.0, summary.NElectrons, 1e-9)
}

func TestParseACFEmpty(t *testing.T) {
	_, _, err := parseACF("    VACUUM CHARGE:  0.0\n")
	assert.Error(t, err)
}

func TestParsePotcarZvals(t *testing.T) {
	potcar := ` PAW_PBE Cu 22Jun2005
   POMASS =   63.546; ZVAL   =   11.000    mass and valenz
 End of Dataset
 PAW_PBE O 08Apr2002
   POMASS =   16.000; ZVAL   =    6.000    mass and valenz
 End of Dataset
`
	assert.Equal(t, []float64{11, 6}, parsePotcarZvals(potcar))
}

func TestRequiredFilesErrorNamesFile(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"CHGCAR", "AECCAR0", "AECCAR2"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644))
	}

	_, err := RunBader(dir, BaderOptions{})
	require.ErrorIs(t, err, errors.ErrMissingOutputFile)
	assert.Contains(t, err.Error(), "POTCAR")
}

func TestRequiredFilesAcceptGzip(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"CHGCAR", "AECCAR0", "AECCAR2"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644))
	}
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, err := zw.Write([]byte("potcar content"))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	require.NoError(t, os.WriteFile(filepath.Join(dir, "POTCAR.gz"), buf.Bytes(), 0o644))

	assert.NoError(t, checkRequiredFiles(dir))
}

func TestEnsurePlainDecompresses(t *testing.T) {
	dir := t.TempDir()
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, err := zw.Write([]byte("payload"))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	require.NoError(t, os.WriteFile(filepath.Join(dir, "POTCAR.gz"), buf.Bytes(), 0o644))

	require.NoError(t, ensurePlain(dir, "POTCAR"))
	data, err := os.ReadFile(filepath.Join(dir, "POTCAR"))
	require.NoError(t, err)
	assert.Equal(t, "payload", string(data))
}

func TestChgcarSpeciesCounts(t *testing.T) {
	dir := t.TempDir()
	header := `Cu2 O
1.0
 3.6 0.0 0.0
 0.0 3.6 0.0
 0.0 0.0 3.6
Cu O
2 1
Direct
0.0 0.0 0.0
0.5 0.5 0.5
0.5 0.5 0.0

  32 32 32
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "CHGCAR"), []byte(header), 0o644))

	counts, err := chgcarSpeciesCounts(dir)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 1}, counts)
}

func TestParseChargemolXYZ(t *testing.T) {
	xyz := `2
DDEC6 net atomic charges
Cu 0.000000 0.000000 0.000000 0.412345
O  1.807500 1.807500 0.000000 -0.412345
`
	values, err := parseChargemolXYZ(xyz)
	require.NoError(t, err)
	assert.Equal(t, []float64{0.412345, -0.412345}, values)
}

func TestParseCM5Section(t *testing.T) {
	text := `2
DDEC6 net atomic charges
Cu 0.0 0.0 0.0 0.41
O  1.8 1.8 0.0 -0.41
The following are the computed CM5 net atomic charges:
 0.350000 -0.350000
`
	assert.Equal(t, []float64{0.35, -0.35}, parseCM5Section(text, 2))
	assert.Nil(t, parseCM5Section("no marker here", 2))
}

func TestRunChargemolRequiresDensitiesDir(t *testing.T) {
	_, err := RunChargemol(t.TempDir(), ChargemolOptions{})
	require.Error(t, err)
	assert.True(t, errors.IsConfigError(err))
	assert.ErrorIs(t, err, errors.ErrInvalidConfig)
}

func TestWriteJobControl(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, writeJobControl(dir, "/opt/densities"))
	data, err := os.ReadFile(filepath.Join(dir, "job_control.txt"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "/opt/densities/")
	assert.Contains(t, string(data), "DDEC6")
}
