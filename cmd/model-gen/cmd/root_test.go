package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const (
	categoryModel = `public class Category
{
    public int Id { get; set; }
    public string Name { get; set; }
    public ICollection<Product> Products { get; set; }
}`
	productModel = `public class Product
{
    public int Id { get; set; }
    [Required, MaxLength(80)]
    public string Name { get; set; }
    [Column(TypeName = "decimal(10,2)")]
    public decimal Price { get; set; }
    public int CategoryId { get; set; }
    public Category Category { get; set; }
}`
)

func sources(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	return dir
}

func execute(t *testing.T, args ...string) (int, string) {
	t.Helper()
	var stderr bytes.Buffer
	code := Run(args, &stderr)
	return code, stderr.String()
}

func readAll(t *testing.T, dir string) map[string]string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	out := map[string]string{}
	for _, e := range entries {
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		require.NoError(t, err)
		out[e.Name()] = string(data)
	}
	return out
}

func TestRunSQLAlchemy(t *testing.T) {
	src := sources(t, map[string]string{
		"Models/Category.cs": categoryModel,
		"Models/Product.cs":  productModel,
		"bin/Stale.cs":       "public class Stale { public int Id { get; set; } }",
	})
	out := filepath.Join(t.TempDir(), "models")

	code, stderr := execute(t, src, "--framework", "sqlalchemy", "--output", out)
	require.Equal(t, exitOK, code, stderr)

	files := readAll(t, out)
	require.Contains(t, files, "category.py")
	require.Contains(t, files, "product.py")
	require.Contains(t, files, "base.py")
	require.Contains(t, files, "__init__.py")
	require.Contains(t, files, "MIGRATION_GUIDE.md")
	require.NotContains(t, files, "stale.py")
	require.NotContains(t, files, "schema.sql")

	require.Contains(t, files["product.py"], `name = Column(String(80), nullable=False)`)
	require.Contains(t, files["product.py"], `price = Column(Numeric(10, 2), nullable=False)`)
	require.Contains(t, files["MIGRATION_GUIDE.md"], "| Entities processed | 2 |")
}

func TestRunDjangoWithSchema(t *testing.T) {
	src := sources(t, map[string]string{"Category.cs": categoryModel, "Product.cs": productModel})
	out := t.TempDir()

	code, stderr := execute(t, "--from-dotnet-models", src, "-f", "Django", "-o", out, "--sql")
	require.Equal(t, exitOK, code, stderr)

	files := readAll(t, out)
	require.Contains(t, files["product.py"], "models.CharField(max_length=80)")
	require.Contains(t, files["schema.sql"], `"price" NUMERIC(10,2) NOT NULL`)
	require.Contains(t, files["MIGRATION_GUIDE.md"], "python manage.py migrate")
}

func TestRunUsageErrors(t *testing.T) {
	src := sources(t, map[string]string{"Product.cs": productModel})
	out := filepath.Join(t.TempDir(), "out")

	tests := []struct {
		name string
		args []string
	}{
		{"no arguments", nil},
		{"missing framework", []string{src, "--output", out}},
		{"invalid framework", []string{src, "--framework", "rails", "--output", out}},
		{"missing output", []string{src, "--framework", "django"}},
		{"unknown flag", []string{src, "--framework", "django", "--output", out, "--verbose"}},
		{"two sources", []string{src, src, "--framework", "django", "--output", out}},
		{"source twice", []string{src, "--from-dotnet-models", src, "--framework", "django", "--output", out}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, stderr := execute(t, tt.args...)
			require.Equal(t, exitUsage, code, stderr)
			require.Contains(t, stderr, "model-gen --help")
			_, err := os.Stat(out)
			require.True(t, os.IsNotExist(err), "no output before usage is validated")
		})
	}
}

func TestRunNoSources(t *testing.T) {
	src := sources(t, map[string]string{"readme.md": "# models"})

	code, stderr := execute(t, src, "--framework", "django", "--output", t.TempDir())
	require.Equal(t, exitFatal, code)
	require.Contains(t, stderr, "no source model files found")
}

func TestRunCollision(t *testing.T) {
	src := sources(t, map[string]string{"Product.cs": productModel})
	out := t.TempDir()

	code, stderr := execute(t, src, "--framework", "sqlalchemy", "--output", out)
	require.Equal(t, exitOK, code, stderr)
	first := readAll(t, out)

	code, stderr = execute(t, src, "--framework", "django", "--output", out)
	require.Equal(t, exitFatal, code)
	require.Contains(t, stderr, "already exists")
	require.Equal(t, first, readAll(t, out))
}

func TestRunOverwriteIsIdempotent(t *testing.T) {
	src := sources(t, map[string]string{"Category.cs": categoryModel, "Product.cs": productModel})
	out := t.TempDir()

	code, stderr := execute(t, src, "--framework", "sqlalchemy", "--output", out, "--overwrite")
	require.Equal(t, exitOK, code, stderr)
	first := readAll(t, out)

	code, stderr = execute(t, src, "--framework", "sqlalchemy", "--output", out, "--overwrite")
	require.Equal(t, exitOK, code, stderr)
	require.Equal(t, first, readAll(t, out))
}

func TestRunFaultIsolation(t *testing.T) {
	src := sources(t, map[string]string{
		"Category.cs": categoryModel,
		"Product.cs":  productModel,
		"Broken.cs":   "public class Broken\n{\n    public int Id { get; set; }\n",
	})
	out := t.TempDir()

	code, stderr := execute(t, src, "--framework", "django", "--output", out)
	require.Equal(t, exitOK, code, stderr)
	require.Contains(t, stderr, "Broken.cs")

	files := readAll(t, out)
	require.Contains(t, files, "category.py")
	require.Contains(t, files, "product.py")
	require.NotContains(t, files, "broken.py")
	require.Contains(t, files["MIGRATION_GUIDE.md"], "Broken.cs")
}

func TestRunConfigFile(t *testing.T) {
	src := sources(t, map[string]string{"Product.cs": productModel})
	out := filepath.Join(t.TempDir(), "from-config")
	cfg := filepath.Join(t.TempDir(), "modelgen.yaml")
	require.NoError(t, os.WriteFile(cfg, []byte("output:\n  framework: django\n  dir: "+out+"\n  sql: true\n"), 0o644))

	code, stderr := execute(t, src, "--config", cfg)
	require.Equal(t, exitOK, code, stderr)
	files := readAll(t, out)
	require.Contains(t, files["product.py"], "from django.db import models")
	require.Contains(t, files, "schema.sql")

	code, stderr = execute(t, src, "--config", cfg, "--framework", "sqlalchemy", "--overwrite", "--sql=false")
	require.Equal(t, exitOK, code, stderr)
	files = readAll(t, out)
	require.Contains(t, files["product.py"], "from sqlalchemy import")
}

func TestRunConfigUnknownFramework(t *testing.T) {
	src := sources(t, map[string]string{"Product.cs": productModel})
	cfg := filepath.Join(t.TempDir(), "modelgen.yaml")
	require.NoError(t, os.WriteFile(cfg, []byte("output:\n  framework: rails\n"), 0o644))

	code, stderr := execute(t, src, "--config", cfg, "--output", t.TempDir())
	require.Equal(t, exitFatal, code)
	require.Contains(t, stderr, "unknown dialect")
}

func TestRunApplyWithoutDatabase(t *testing.T) {
	src := sources(t, map[string]string{"Product.cs": productModel})
	out := t.TempDir()

	code, stderr := execute(t, src, "--framework", "sqlalchemy", "--output", out, "--apply")
	require.Equal(t, exitFatal, code)
	require.Contains(t, stderr, "no database connection configured")
	require.Contains(t, readAll(t, out), "schema.sql")
}

func TestRunBrokenConfigWithMissingFlags(t *testing.T) {
	src := sources(t, map[string]string{"Product.cs": productModel})
	cfg := filepath.Join(t.TempDir(), "modelgen.yaml")
	require.NoError(t, os.WriteFile(cfg, []byte("output: [unclosed\n"), 0o644))

	code, stderr := execute(t, src, "--config", cfg, "--output", t.TempDir())
	require.Equal(t, exitUsage, code, stderr)
	require.Contains(t, stderr, "missing --framework")

	code, stderr = execute(t, src, "--config", cfg, "--framework", "django", "--output", t.TempDir())
	require.Equal(t, exitFatal, code, stderr)
}
