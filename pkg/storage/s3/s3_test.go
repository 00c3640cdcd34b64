package s3

import "testing"

func TestParseURL(t *testing.T) {
	tests := []struct {
		raw        string
		wantBucket string
		wantPrefix string
		wantErr    bool
	}{
		{"s3://results", "results", "", false},
		{"s3://results/", "results", "", false},
		{"s3://results/runs/2024/", "results", "runs/2024", false},
		{"https://results/runs", "", "", true},
		{"s3:///runs", "", "", true},
		{"results/runs", "", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			bucket, prefix, err := ParseURL(tt.raw)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseURL(%q) error = %v, wantErr %v", tt.raw, err, tt.wantErr)
			}
			if bucket != tt.wantBucket || prefix != tt.wantPrefix {
				t.Errorf("ParseURL(%q) = (%q, %q), want (%q, %q)", tt.raw, bucket, prefix, tt.wantBucket, tt.wantPrefix)
			}
		})
	}
}

func TestObjectKey(t *testing.T) {
	tests := []struct {
		prefix, file, want string
	}{
		{"", "out/history.parquet", "history.parquet"},
		{"runs", "out/history.parquet", "runs/history.parquet"},
		{"runs/2024", "history.csv", "runs/2024/history.csv"},
	}
	for _, tt := range tests {
		if got := ObjectKey(tt.prefix, tt.file); got != tt.want {
			t.Errorf("ObjectKey(%q, %q) = %q, want %q", tt.prefix, tt.file, got, tt.want)
		}
	}
}

func TestContentType(t *testing.T) {
	if got := contentType("a.parquet"); got != "application/vnd.apache.parquet" {
		t.Errorf("parquet content type = %q", got)
	}
	if got := contentType("a.db"); got != "application/octet-stream" {
		t.Errorf("duckdb content type = %q", got)
	}
}
