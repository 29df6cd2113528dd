package lavalink

import (
	"testing"

	"github.com/disgoorg/json"
)

func TestLoadResult_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		want    LoadType
		tracks  int
		wantErr bool
	}{
		{
			name:   "track",
			data:   `{"loadType":"track","data":{"encoded":"blob","info":{"identifier":"id","title":"t","sourceName":"youtube"}}}`,
			want:   LoadTypeTrack,
			tracks: 1,
		},
		{
			name:   "search",
			data:   `{"loadType":"search","data":[{"encoded":"a","info":{}},{"encoded":"b","info":{}}]}`,
			want:   LoadTypeSearch,
			tracks: 2,
		},
		{
			name:   "playlist",
			data:   `{"loadType":"playlist","data":{"info":{"name":"Mix","selectedTrack":1},"tracks":[{"encoded":"a","info":{}},{"encoded":"b","info":{}},{"encoded":"c","info":{}}]}}`,
			want:   LoadTypePlaylist,
			tracks: 3,
		},
		{
			name:   "empty",
			data:   `{"loadType":"empty","data":{}}`,
			want:   LoadTypeEmpty,
			tracks: 0,
		},
		{
			name:   "error",
			data:   `{"loadType":"error","data":{"message":"boom","severity":"common","cause":"test"}}`,
			want:   LoadTypeError,
			tracks: 0,
		},
		{name: "unknown", data: `{"loadType":"mystery","data":{}}`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var result LoadResult
			err := json.Unmarshal([]byte(tt.data), &result)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("Unmarshal() = %+v, want error", result)
				}
				return
			}
			if err != nil {
				t.Fatalf("Unmarshal() error = %v", err)
			}
			if result.LoadType != tt.want {
				t.Errorf("LoadType = %s, want %s", result.LoadType, tt.want)
			}
			if got := len(result.Tracks()); got != tt.tracks {
				t.Errorf("Tracks() returned %d tracks, want %d", got, tt.tracks)
			}
		})
	}
}

func TestLoadResult_PlaylistData(t *testing.T) {
	data := `{"loadType":"playlist","data":{"info":{"name":"Mix","selectedTrack":1},"tracks":[{"encoded":"a","info":{}}]}}`
	var result LoadResult
	if err := json.Unmarshal([]byte(data), &result); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	playlist, ok := result.Data.(Playlist)
	if !ok {
		t.Fatalf("Data = %T, want Playlist", result.Data)
	}
	if playlist.Info.Name != "Mix" || playlist.Info.SelectedTrack != 1 {
		t.Errorf("Info = %+v", playlist.Info)
	}
}

func TestLoadResult_ExceptionData(t *testing.T) {
	data := `{"loadType":"error","data":{"message":"boom","severity":"fault","cause":"test"}}`
	var result LoadResult
	if err := json.Unmarshal([]byte(data), &result); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	exception, ok := result.Data.(Exception)
	if !ok {
		t.Fatalf("Data = %T, want Exception", result.Data)
	}
	if exception.Message != "boom" || exception.Severity != SeverityFault {
		t.Errorf("exception = %+v", exception)
	}
	if exception.Error() != "boom" {
		t.Errorf("Error() = %q, want boom", exception.Error())
	}
}
