package models

type SiteSectionRequest struct {
	Section string  `json:"section"`
	Content JSONMap `json:"content"`
}

type RestoreVersionRequest struct {
	Version int `json:"version" binding:"required,min=1"`
}

type CreateBackupRequest struct {
	Type              BackupType `json:"type"`
	Tables            []string   `json:"tables"`
	IncludeMedia      bool       `json:"include_media"`
	IncludeSystemData bool       `json:"include_system_data"`
	Description       string     `json:"description" binding:"max=500"`
}

type RestoreBackupRequest struct {
	BackupID               string `json:"backup_id" binding:"required"`
	CreatePreRestoreBackup *bool  `json:"create_pre_restore_backup"`
	ValidateIntegrity      *bool  `json:"validate_integrity"`
}

type BackupScheduleRequest struct {
	Enabled   bool   `json:"enabled"`
	Cron      string `json:"cron" binding:"required"`
	Retention int    `json:"retention" binding:"min=0,max=365"`
}

type UpdateMediaRequest struct {
	Alt string `json:"alt" binding:"max=300,no_html"`
}
