package hosts_test

import (
	"context"
	"testing"

	"github.com/smahi/mirrorbot/internal/hosts"
)

type fakeDownloader struct{ host string }

func (f *fakeDownloader) Host() string { return f.host }
func (f *fakeDownloader) Download(ctx context.Context, url, destDir string, progress hosts.ProgressFunc) (string, error) {
	return "", nil
}

type fakeUploader struct{ host string }

func (f *fakeUploader) Host() string { return f.host }
func (f *fakeUploader) Upload(ctx context.Context, localPath string, progress hosts.ProgressFunc) (string, error) {
	return "", nil
}

func TestSetRegistration(t *testing.T) {
	set := hosts.NewSet()
	set.RegisterDownloader(&fakeDownloader{host: "Rapidgator.net"})
	set.RegisterUploader(&fakeUploader{host: "katfile.com"})

	// Lookup is case-insensitive and ignores a www. prefix.
	if _, ok := set.Downloader("www.rapidgator.net"); !ok {
		t.Error("downloader lookup failed for www-prefixed host")
	}
	if _, ok := set.Uploader("KATFILE.COM"); !ok {
		t.Error("uploader lookup is case-sensitive")
	}
	if _, ok := set.Downloader("unknown.example"); ok {
		t.Error("lookup for unregistered host succeeded")
	}
}

func TestDuplicateRegistrationPanics(t *testing.T) {
	set := hosts.NewSet()
	set.RegisterDownloader(&fakeDownloader{host: "rapidgator.net"})

	defer func() {
		if recover() == nil {
			t.Error("duplicate registration did not panic")
		}
	}()
	set.RegisterDownloader(&fakeDownloader{host: "rapidgator.net"})
}

func TestDownloaderForURL(t *testing.T) {
	set := hosts.NewSet()
	set.RegisterDownloader(&fakeDownloader{host: "rapidgator.net"})
	set.RegisterDownloader(&fakeDownloader{host: "katfile.com"})

	d, ok := set.DownloaderForURL("https://RAPIDGATOR.net/file/abc123")
	if !ok || d.Host() != "rapidgator.net" {
		t.Errorf("DownloaderForURL resolved %v, %v", d, ok)
	}
	if _, ok := set.DownloaderForURL("https://example.org/file"); ok {
		t.Error("resolved a capability for an unsupported url")
	}
}

func TestValidateUploadHosts(t *testing.T) {
	set := hosts.NewSet()
	set.RegisterUploader(&fakeUploader{host: "rapidgator.net"})

	if err := set.ValidateUploadHosts([]string{"rapidgator.net"}); err != nil {
		t.Errorf("validation failed for registered host: %v", err)
	}
	err := set.ValidateUploadHosts([]string{"rapidgator.net", "nitroflare.com", "ddownload.com"})
	if err == nil {
		t.Fatal("validation passed with missing capabilities")
	}
}
