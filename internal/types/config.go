package types

// Job kinds.
const (
	KindExtract  = "extract"
	KindClassify = "classify"
)

// Mail store types.
const (
	MailStoreEML  = "eml"
	MailStoreIMAP = "imap"
)

// Config is one job definition, loaded from a *.config.yaml file.
type Config struct {
	// Meta information for the configuration
	Meta struct {
		ID          string `yaml:"id"`
		Name        string `yaml:"name"`
		Description string `yaml:"description,omitempty"`
		Enabled     bool   `yaml:"enabled"`
		Template    string `yaml:"template,omitempty"` // Name of the template to use
	} `yaml:"meta"`

	// Kind is extract or classify.
	Kind string `yaml:"kind"`

	Extract struct {
		SearchPhrases []string `yaml:"search_phrases"`
		DateStart     string   `yaml:"date_start"` // YYYY-MM-DD
		DateEnd       string   `yaml:"date_end"`   // YYYY-MM-DD
		// LastDays replaces fixed dates with a window ending today, for
		// scheduled runs.
		LastDays       int    `yaml:"last_days"`
		SourceFolder   string `yaml:"source_folder"`
		DestinationDir string `yaml:"destination_dir"`
	} `yaml:"extract"`

	Classify struct {
		SourceDir         string   `yaml:"source_dir"`
		DestinationDir    string   `yaml:"destination_dir"`
		PatronesFirmado   []string `yaml:"patrones_firmado"`
		PatronesNoFirmado []string `yaml:"patrones_no_firmado"`
		CrearSubcarpetas  bool     `yaml:"crear_subcarpetas"`
		Mode              string   `yaml:"mode"` // copy, move
		SignedDir         string   `yaml:"signed_dir"`
		UnsignedDir       string   `yaml:"unsigned_dir"`
		UnmatchedDir      string   `yaml:"unmatched_dir"`
	} `yaml:"classify"`

	MailStore struct {
		Type     string `yaml:"type"` // eml, imap
		Root     string `yaml:"root"` // eml: directory tree of .eml files
		Server   string `yaml:"server"`
		Port     int    `yaml:"port"`
		Username string `yaml:"username"`
		Password string `yaml:"password"`
		Timeout  int    `yaml:"timeout"` // seconds
		Security struct {
			TLS struct {
				Enabled    bool `yaml:"enabled"`
				VerifyCert bool `yaml:"verify_cert"`
			} `yaml:"tls"`
			OAuth2 struct {
				Enabled          bool   `yaml:"enabled"`
				Provider         string `yaml:"provider"` // google, microsoft
				ClientID         string `yaml:"client_id"`
				ClientSecret     string `yaml:"client_secret"`
				RedirectURL      string `yaml:"redirect_url"`
				TokenStoragePath string `yaml:"token_storage_path"`
			} `yaml:"oauth2"`
		} `yaml:"security"`
	} `yaml:"mailstore"`

	Retry struct {
		MaxIntentos int `yaml:"max_intentos"`
		Timeout     int `yaml:"timeout"` // seconds between attempts
	} `yaml:"retry"`

	// RunLog leaves a log file of every run in the destination.
	RunLog bool `yaml:"run_log"`

	Report struct {
		Enabled bool   `yaml:"enabled"`
		Dir     string `yaml:"dir"`    // defaults to the destination
		Format  string `yaml:"format"` // json, csv or both comma separated
		GDrive  struct {
			Enabled         bool   `yaml:"enabled"`
			CredentialsFile string `yaml:"credentials_file"`
			ParentFolderID  string `yaml:"parent_folder_id"`
			FolderPath      string `yaml:"folder_path"`
		} `yaml:"gdrive"`
	} `yaml:"report"`

	Tracking struct {
		Enabled       bool   `yaml:"enabled"`
		StorageType   string `yaml:"storage_type"` // file, sqlite
		StoragePath   string `yaml:"storage_path"`
		RetentionDays int    `yaml:"retention_days"`
	} `yaml:"tracking"`

	ErrorLogging struct {
		Enabled       bool   `yaml:"enabled"`
		StoragePath   string `yaml:"storage_path"`
		RetentionDays int    `yaml:"retention_days"`
	} `yaml:"error_logging"`

	Logging struct {
		Level         string `yaml:"level"`
		Format        string `yaml:"format"` // text, json, dev
		Output        string `yaml:"output"` // stdout, file
		FilePath      string `yaml:"file_path"`
		IncludeCaller bool   `yaml:"include_caller"`
	} `yaml:"logging"`

	Scheduling struct {
		Enabled         bool   `yaml:"enabled"`
		FrequencyEvery  string `yaml:"frequency_every"` // minute, hour, day, week, month
		FrequencyAmount int    `yaml:"frequency_amount"`
		StartNow        bool   `yaml:"start_now"`
		StartAt         string `yaml:"start_at"` // UTC DateTime
		StopAt          string `yaml:"stop_at"`  // UTC DateTime
	} `yaml:"scheduling"`
}
