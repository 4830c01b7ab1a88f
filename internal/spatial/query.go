package spatial

import (
	"fmt"
	"strings"
)

// Codecs lists the lossless parquet codecs the engine can write
var Codecs = []string{"zstd", "snappy", "gzip", "lz4", "brotli", "uncompressed"}

// ValidateCodec normalizes and checks a compression codec name
func ValidateCodec(codec string) (string, error) {
	c := strings.ToLower(strings.TrimSpace(codec))
	if c == "" {
		return "zstd", nil
	}
	for _, known := range Codecs {
		if c == known {
			return c, nil
		}
	}
	return "", fmt.Errorf("unsupported compression %q (want one of %s)", codec, strings.Join(Codecs, ", "))
}

// quoteLiteral renders s as a SQL string literal
func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// quoteIdent renders s as a SQL identifier
func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// SplitQuery selects every dataset row whose geometry intersects at
// least one geometry of the boundary file. Rows come out once per
// boundary file however many of its geometries they touch, with all
// dataset columns.
func SplitQuery(dataset, boundary, geometryColumn string) string {
	geom := quoteIdent(geometryColumn)
	return fmt.Sprintf(`SELECT a.*
FROM read_parquet(%s) AS a
WHERE EXISTS (
  SELECT 1 FROM read_parquet(%s) AS b
  WHERE ST_Intersects(a.%s, b.%s)
)`, quoteLiteral(dataset), quoteLiteral(boundary), geom, geom)
}

// CopyStatement wraps the split query in a parquet export
func CopyStatement(dataset, boundary, output, geometryColumn, codec string) string {
	return fmt.Sprintf("COPY (%s) TO %s (FORMAT PARQUET, COMPRESSION %s)",
		SplitQuery(dataset, boundary, geometryColumn), quoteLiteral(output), strings.ToUpper(codec))
}

// CountStatement counts the rows of a written parquet file
func CountStatement(path string) string {
	return fmt.Sprintf("SELECT count(*) FROM read_parquet(%s)", quoteLiteral(path))
}
