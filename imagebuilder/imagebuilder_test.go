package imagebuilder

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"io"
	"testing"
)

func TestBuildContext_PacksDockerfileAndExtraFiles(t *testing.T) {
	r, err := buildContext("FROM scratch\n", map[string][]byte{"app.py": []byte("print(1)")})
	if err != nil {
		t.Fatalf("buildContext returned error: %v", err)
	}

	buf, ok := r.(*bytes.Buffer)
	if !ok {
		t.Fatalf("buildContext returned %T, want *bytes.Buffer", r)
	}

	gz, err := gzip.NewReader(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatalf("gzip.NewReader returned error: %v", err)
	}
	tr := tar.NewReader(gz)

	files := map[string]string{}
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("tar.Next returned error: %v", err)
		}
		content, err := io.ReadAll(tr)
		if err != nil {
			t.Fatalf("reading tar entry %s: %v", hdr.Name, err)
		}
		files[hdr.Name] = string(content)
	}

	if files["Dockerfile"] != "FROM scratch\n" {
		t.Errorf("Dockerfile content = %q", files["Dockerfile"])
	}
	if files["app.py"] != "print(1)" {
		t.Errorf("app.py content = %q", files["app.py"])
	}
}

func TestBuild_RejectsInvalidTag(t *testing.T) {
	b := New(nil)
	_, err := b.Build(context.Background(), "FROM scratch\n", nil, "INVALID TAG!!", nil)
	if err == nil {
		t.Fatal("Build returned nil error for an invalid tag")
	}
}
