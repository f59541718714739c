package health

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"WasteDetServer/engine"
)

const (
	Healthy   = "healthy"
	Unhealthy = "unhealthy"
)

// Deps is what a health check looks at.
type Deps struct {
	ModelsDir  string
	UploadsDir string
	Detectors  []*engine.Detector
	// LoadError is the model load failure when no detector could be built.
	LoadError  error
	GroqAPIKey string
}

type ModelFile struct {
	Name string `json:"name"`
	Path string `json:"path"`
	Size int64  `json:"size"`
}

type EngineStatus struct {
	Status  string `json:"status"`
	Backend string `json:"backend,omitempty"`
	Model   string `json:"model,omitempty"`
	Workers int    `json:"workers"`
	Error   string `json:"error,omitempty"`
}

type Models struct {
	Available      []ModelFile `json:"available"`
	TotalAvailable int         `json:"total_available"`
}

type Directories struct {
	Existing      []string `json:"existing"`
	Missing       []string `json:"missing"`
	TotalExisting int      `json:"total_existing"`
	TotalMissing  int      `json:"total_missing"`
}

type KeyStatus struct {
	Status    string `json:"status"`
	KeyLength int    `json:"key_length,omitempty"`
	Error     string `json:"error,omitempty"`
}

type Report struct {
	Timestamp      string               `json:"timestamp"`
	OverallStatus  string               `json:"overall_status"`
	Engine         EngineStatus         `json:"engine"`
	Models         Models               `json:"models"`
	Directories    Directories          `json:"directories"`
	APIKeys        map[string]KeyStatus `json:"api_keys"`
	CriticalErrors []string             `json:"critical_errors"`
}

func (r Report) Healthy() bool { return r.OverallStatus == Healthy }

// Check inspects deps. Only a missing or unreachable model makes the report
// unhealthy; missing directories and API keys are informational.
func Check(deps Deps) Report {
	r := Report{
		Timestamp:      time.Now().UTC().Format(time.RFC3339),
		Engine:         checkEngine(deps),
		Models:         checkModels(deps.ModelsDir),
		Directories:    checkDirectories(map[string]string{"uploads": deps.UploadsDir, "models": deps.ModelsDir}),
		APIKeys:        map[string]KeyStatus{"groq": checkKey(deps.GroqAPIKey, "GROQ_API_KEY")},
		CriticalErrors: []string{},
	}
	if r.Engine.Status != "loaded" {
		msg := "model not loaded"
		if r.Engine.Error != "" {
			msg += ": " + r.Engine.Error
		}
		r.CriticalErrors = append(r.CriticalErrors, msg)
	}
	if len(r.CriticalErrors) == 0 {
		r.OverallStatus = Healthy
	} else {
		r.OverallStatus = Unhealthy
	}
	return r
}

func checkEngine(deps Deps) EngineStatus {
	st := EngineStatus{Status: "unavailable", Workers: len(deps.Detectors)}
	if deps.LoadError != nil {
		st.Error = deps.LoadError.Error()
		return st
	}
	loaded := 0
	for _, d := range deps.Detectors {
		if !d.Loaded() {
			continue
		}
		if err := d.Ping(); err != nil {
			st.Status = "unreachable"
			st.Error = err.Error()
			return st
		}
		loaded++
		cfg := d.CheckConfig()
		st.Backend, st.Model = cfg.Backend, cfg.ModelPath
	}
	if loaded == 0 {
		if len(deps.Detectors) == 0 {
			st.Error = "no detectors configured"
		}
		return st
	}
	st.Status = "loaded"
	return st
}

func checkModels(dir string) Models {
	files, _ := ListModels(dir)
	return Models{Available: files, TotalAvailable: len(files)}
}

// ListModels returns the .onnx files directly under dir, sorted by name. A
// missing directory yields an empty list.
func ListModels(dir string) ([]ModelFile, error) {
	out := []ModelFile{}
	if dir == "" {
		return out, nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return out, nil
		}
		return out, err
	}
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".onnx") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		out = append(out, ModelFile{
			Name: e.Name(),
			Path: filepath.Join(dir, e.Name()),
			Size: info.Size(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func checkDirectories(dirs map[string]string) Directories {
	d := Directories{Existing: []string{}, Missing: []string{}}
	names := make([]string, 0, len(dirs))
	for name := range dirs {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		info, err := os.Stat(dirs[name])
		if dirs[name] != "" && err == nil && info.IsDir() {
			d.Existing = append(d.Existing, name)
		} else {
			d.Missing = append(d.Missing, name)
		}
	}
	d.TotalExisting, d.TotalMissing = len(d.Existing), len(d.Missing)
	return d
}

func checkKey(key, env string) KeyStatus {
	if key == "" {
		return KeyStatus{Status: "not_configured", Error: env + " environment variable not set"}
	}
	return KeyStatus{Status: "configured", KeyLength: len(key)}
}
