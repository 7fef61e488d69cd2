package cloudsync

import (
	"testing"
	"time"
)

func TestNewManifestIsEmptyAndStamped(t *testing.T) {
	m := New("device-a")
	if m.Version != ManifestVersion {
		t.Fatalf("expected version %d, got %d", ManifestVersion, m.Version)
	}
	if m.DeviceID != "device-a" {
		t.Fatalf("expected device id device-a, got %s", m.DeviceID)
	}
	if len(m.Media) != 0 || len(m.Albums) != 0 {
		t.Fatal("expected a freshly built manifest to have no media or albums")
	}
	if _, err := time.Parse(time.RFC3339, m.LastUpdated); err != nil {
		t.Fatalf("expected LastUpdated to be RFC3339, got %q: %v", m.LastUpdated, err)
	}
}

func TestMarshalParseRoundTrip(t *testing.T) {
	m := New("device-a")
	m.Media["abc123"] = MediaEntry{IsFavorite: true, Rating: 5, Albums: []string{"trip"}, LastModified: "2026-01-01T00:00:00Z"}
	m.Albums["trip"] = AlbumEntry{Name: "Trip", CreatedAt: "2026-01-01T00:00:00Z"}

	raw, err := m.Marshal()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	got, err := Parse(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got.Media["abc123"].Rating != 5 || !got.Media["abc123"].IsFavorite {
		t.Fatalf("expected media entry to round-trip, got %+v", got.Media["abc123"])
	}
	if got.Albums["trip"].Name != "Trip" {
		t.Fatalf("expected album entry to round-trip, got %+v", got.Albums["trip"])
	}
}

func TestParseToleratesMissingMapsAndUnknownFields(t *testing.T) {
	raw := []byte(`{"version":1,"device_id":"d","last_updated":"2026-01-01T00:00:00Z","unknown_field":"ignored"}`)
	m, err := Parse(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if m.Media == nil || m.Albums == nil {
		t.Fatal("expected Parse to initialize nil maps")
	}
}

func TestMergePrefersNewerRemoteMediaEntry(t *testing.T) {
	local := New("local")
	local.Media["x"] = MediaEntry{IsFavorite: false, Rating: 1, LastModified: "2026-01-01T00:00:00Z"}

	remote := New("remote")
	remote.Media["x"] = MediaEntry{IsFavorite: true, Rating: 5, LastModified: "2026-02-01T00:00:00Z"}

	merged := Merge(local, remote)
	if merged.Media["x"].Rating != 5 || !merged.Media["x"].IsFavorite {
		t.Fatalf("expected the newer remote entry to win, got %+v", merged.Media["x"])
	}
}

func TestMergeKeepsLocalWhenLocalIsNewer(t *testing.T) {
	local := New("local")
	local.Media["x"] = MediaEntry{Rating: 9, LastModified: "2026-03-01T00:00:00Z"}

	remote := New("remote")
	remote.Media["x"] = MediaEntry{Rating: 1, LastModified: "2026-01-01T00:00:00Z"}

	merged := Merge(local, remote)
	if merged.Media["x"].Rating != 9 {
		t.Fatalf("expected the newer local entry to survive, got %+v", merged.Media["x"])
	}
}

func TestMergeUnionsEntriesPresentOnlyOnOneSide(t *testing.T) {
	local := New("local")
	local.Media["only-local"] = MediaEntry{Rating: 3, LastModified: "2026-01-01T00:00:00Z"}
	local.Albums["vacation"] = AlbumEntry{Name: "Vacation", CreatedAt: "2026-01-01T00:00:00Z"}

	remote := New("remote")
	remote.Media["only-remote"] = MediaEntry{Rating: 4, LastModified: "2026-01-02T00:00:00Z"}
	remote.Albums["family"] = AlbumEntry{Name: "Family", CreatedAt: "2026-01-02T00:00:00Z"}

	merged := Merge(local, remote)
	if _, ok := merged.Media["only-local"]; !ok {
		t.Fatal("expected local-only media entry to survive the merge")
	}
	if _, ok := merged.Media["only-remote"]; !ok {
		t.Fatal("expected remote-only media entry to be adopted")
	}
	if _, ok := merged.Albums["vacation"]; !ok {
		t.Fatal("expected local-only album to survive the merge")
	}
	if _, ok := merged.Albums["family"]; !ok {
		t.Fatal("expected remote-only album to be adopted")
	}
}

func TestMergeDoesNotOverwriteExistingLocalAlbum(t *testing.T) {
	local := New("local")
	local.Albums["trip"] = AlbumEntry{Name: "Original Name", CreatedAt: "2026-01-01T00:00:00Z"}

	remote := New("remote")
	remote.Albums["trip"] = AlbumEntry{Name: "Renamed", CreatedAt: "2026-01-05T00:00:00Z"}

	merged := Merge(local, remote)
	if merged.Albums["trip"].Name != "Original Name" {
		t.Fatalf("expected album merge to be create-only, local name should win, got %q", merged.Albums["trip"].Name)
	}
}

func TestMergeDoesNotMutateInputs(t *testing.T) {
	local := New("local")
	local.Media["x"] = MediaEntry{Rating: 1, LastModified: "2026-01-01T00:00:00Z"}
	remote := New("remote")
	remote.Media["x"] = MediaEntry{Rating: 9, LastModified: "2026-05-01T00:00:00Z"}

	_ = Merge(local, remote)

	if local.Media["x"].Rating != 1 {
		t.Fatal("expected Merge to leave the local manifest untouched")
	}
}

func TestMergeAdvancesLastUpdatedToTheNewerSide(t *testing.T) {
	local := New("local")
	local.LastUpdated = "2026-01-01T00:00:00Z"
	remote := New("remote")
	remote.LastUpdated = "2026-06-01T00:00:00Z"

	merged := Merge(local, remote)
	if merged.LastUpdated != "2026-06-01T00:00:00Z" {
		t.Fatalf("expected merged LastUpdated to advance to the newer timestamp, got %s", merged.LastUpdated)
	}
	if merged.DeviceID != "local" {
		t.Fatalf("expected merge to preserve the local device id, got %s", merged.DeviceID)
	}
}
