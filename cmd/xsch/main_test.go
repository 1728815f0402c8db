package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"xsch-membership-backend/pkg/database"
	"xsch-membership-backend/pkg/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func localEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("ENVIRONMENT", "test")
	t.Setenv("USE_LOCAL_DB", "true")
	t.Setenv("LOCAL_DATA_DIR", dir)
	t.Setenv("POSTGRES_DSN", "")
	t.Setenv("SUPABASE_URL", "")
	return dir
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestRootCommandTree(t *testing.T) {
	root := newRootCmd()
	for _, name := range []string{"serve", "migrate", "export-members"} {
		cmd, _, err := root.Find([]string{name})
		require.NoError(t, err)
		assert.Equal(t, name, cmd.Name())
	}
}

func TestMigrateRequiresDSN(t *testing.T) {
	localEnv(t)
	_, err := run(t, "migrate")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "POSTGRES_DSN")
}

func TestExportMembersWritesWorkbook(t *testing.T) {
	dir := localEnv(t)

	db := database.NewLocalDatabase(dir)
	require.NoError(t, db.CreateMember(&models.Member{Name: "Ana", Phone: "71234567", MemberType: models.MemberTypeVolunteer}))
	require.NoError(t, db.CreateMember(&models.Member{Name: "Luis", Phone: "71234568", MemberType: models.MemberTypeMilitant}))

	target := filepath.Join(t.TempDir(), "out.xlsx")
	out, err := run(t, "export-members", "--out", target)
	require.NoError(t, err)
	assert.Contains(t, out, "2 members")

	_, err = os.Stat(target)
	require.NoError(t, err)

	f, err := excelize.OpenFile(target)
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows(f.GetSheetName(0))
	require.NoError(t, err)
	assert.Len(t, rows, 3)
}
