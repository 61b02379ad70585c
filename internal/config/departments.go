package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/callrodry/capcee-proyecto/internal/types"
)

// =============================================================================
// DEPARTMENT MAPPING FILE STRUCTURE
// =============================================================================

// DepartmentConfig is one department mapping file.
//
// Example:
//
//	department_code: OBRAS
//	department_name: Dirección de Obras
//	daily_upload_limit: 50
//	max_file_size_mb: 50
//	file_types:
//	  - file_type: OBRAS_2025
//	    mappings:
//	      - source_column: FOLIO1
//	        target_field: folio1
//	        data_type: number
//	        required: true
type DepartmentConfig struct {
	DepartmentCode   string `yaml:"department_code"`
	DepartmentName   string `yaml:"department_name"`
	Description      string `yaml:"description"`
	DailyUploadLimit int    `yaml:"daily_upload_limit"`
	MaxFileSizeMB    int    `yaml:"max_file_size_mb"`

	// FileTypes lists the mapping set of every file type, in file order.
	FileTypes []FileTypeConfig `yaml:"file_types"`
}

// FileTypeConfig is the ordered mapping list of one file type.
type FileTypeConfig struct {
	FileType string         `yaml:"file_type"`
	Mappings []MappingEntry `yaml:"mappings"`
}

// MappingEntry is a column mapping as written in YAML. Active defaults to
// true when omitted.
type MappingEntry struct {
	types.ColumnMapping `yaml:",inline"`
	Active              *bool `yaml:"active"`
}

// Department returns the department described by the file.
func (d *DepartmentConfig) Department() types.Department {
	return types.Department{
		Code:             d.DepartmentCode,
		Name:             d.DepartmentName,
		Description:      d.Description,
		DailyUploadLimit: d.DailyUploadLimit,
		MaxFileSizeMB:    d.MaxFileSizeMB,
		Active:           true,
	}
}

// ColumnMappings flattens every file type into registry mappings, keyed by
// this department's code and in configured order.
func (d *DepartmentConfig) ColumnMappings() []types.ColumnMapping {
	var out []types.ColumnMapping
	for _, ft := range d.FileTypes {
		for i, e := range ft.Mappings {
			m := e.ColumnMapping
			m.DepartmentCode = d.DepartmentCode
			m.FileType = ft.FileType
			m.DataType = types.ParseDataType(string(m.DataType))
			m.Active = e.Active == nil || *e.Active
			m.Position = i
			out = append(out, m)
		}
	}
	return out
}

// =============================================================================
// LOADING FUNCTIONS
// =============================================================================

// LoadDepartmentConfigs loads all department mapping files from a directory.
//
// PARAMETERS:
//   - dir: The directory containing *.yaml / *.yml files.
//
// RETURNS:
//   - The department configurations keyed by department code.
//   - An error if any file cannot be parsed or two files declare the same code.
func LoadDepartmentConfigs(dir string) (map[string]*DepartmentConfig, error) {
	files, err := filepath.Glob(filepath.Join(dir, "*.yaml"))
	if err != nil {
		return nil, fmt.Errorf("failed to list config files: %w", err)
	}
	ymlFiles, err := filepath.Glob(filepath.Join(dir, "*.yml"))
	if err != nil {
		return nil, fmt.Errorf("failed to list config files: %w", err)
	}
	files = append(files, ymlFiles...)
	sort.Strings(files)

	configs := make(map[string]*DepartmentConfig)
	for _, file := range files {
		cfg, err := loadDepartmentConfig(file)
		if err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", file, err)
		}
		if cfg == nil {
			continue
		}
		if _, dup := configs[cfg.DepartmentCode]; dup {
			return nil, fmt.Errorf("department %s is declared in more than one file", cfg.DepartmentCode)
		}
		configs[cfg.DepartmentCode] = cfg
	}
	return configs, nil
}

// loadDepartmentConfig loads one file. Files without a department_code (the
// main config living in the same directory, for example) are skipped.
func loadDepartmentConfig(path string) (*DepartmentConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	var cfg DepartmentConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse file: %w", err)
	}
	if cfg.DepartmentCode == "" {
		return nil, nil
	}

	cfg.DepartmentCode = strings.ToUpper(strings.TrimSpace(cfg.DepartmentCode))
	for i := range cfg.FileTypes {
		ft := &cfg.FileTypes[i]
		ft.FileType = strings.ToUpper(strings.TrimSpace(ft.FileType))
		if ft.FileType == "" {
			return nil, fmt.Errorf("file_types[%d]: file_type is required", i)
		}
		seen := make(map[string]bool)
		for j, m := range ft.Mappings {
			if m.SourceColumn == "" || m.TargetField == "" {
				return nil, fmt.Errorf("%s mappings[%d]: source_column and target_field are required", ft.FileType, j)
			}
			key := strings.ToUpper(strings.TrimSpace(m.SourceColumn))
			if seen[key] {
				return nil, fmt.Errorf("%s: source column %q is mapped twice", ft.FileType, m.SourceColumn)
			}
			seen[key] = true
		}
	}
	return &cfg, nil
}
