package models

// Статусы согласования, хранимые в БД. Статус "expired" в БД не
// записывается: он вычисляется на чтении из expires_at (см. Approval.EffectiveStatus).
const (
	ApprovalStatusPending          = "pending"
	ApprovalStatusApproved         = "approved"
	ApprovalStatusChangesRequested = "changes_requested"
	ApprovalStatusExpired          = "expired"
)

// ValidApprovalDecisions список решений, допустимых в ответе клиента на портале.
var ValidApprovalDecisions = map[string]bool{
	ApprovalStatusApproved:         true,
	ApprovalStatusChangesRequested: true,
}

// Стадии проекта в терминах архитектурной практики.
const (
	ProjectStageConcept           = "concept"
	ProjectStageSchematic         = "schematic"
	ProjectStageDesignDevelopment = "design_development"
	ProjectStageDocumentation     = "documentation"
	ProjectStageConstruction      = "construction"
)

var ValidProjectStages = map[string]bool{
	ProjectStageConcept:           true,
	ProjectStageSchematic:         true,
	ProjectStageDesignDevelopment: true,
	ProjectStageDocumentation:     true,
	ProjectStageConstruction:      true,
}

// Статусы проекта.
const (
	ProjectStatusActive   = "active"
	ProjectStatusArchived = "archived"
)

var ValidProjectStatuses = map[string]bool{
	ProjectStatusActive:   true,
	ProjectStatusArchived: true,
}

// Роли пользователей внутри организации.
const (
	UserRoleOwner  = "owner"
	UserRoleAdmin  = "admin"
	UserRoleMember = "member"
)

var ValidUserRoles = map[string]bool{
	UserRoleOwner:  true,
	UserRoleAdmin:  true,
	UserRoleMember: true,
}

// Типы субъектов в журнале аудита.
const (
	ActorTypeUser   = "user"
	ActorTypeClient = "client"
	ActorTypeSystem = "system"
)

// Действия журнала аудита. Формат "сущность.глагол" фиксирован:
// по нему строятся фильтры в выгрузке журнала.
const (
	AuditApprovalCreated      = "approval.created"
	AuditApprovalSent         = "approval.sent"
	AuditApprovalViewed       = "approval.viewed"
	AuditApprovalApproved     = "approval.approved"
	AuditApprovalChanges      = "approval.changes_requested"
	AuditApprovalResubmitted  = "approval.resubmitted"
	AuditApprovalRevoked      = "approval.revoked"
	AuditApprovalReminderSent = "approval.reminder_sent"

	AuditProjectCreated  = "project.created"
	AuditProjectUpdated  = "project.updated"
	AuditProjectArchived = "project.archived"

	AuditClientCreated  = "client.created"
	AuditClientUpdated  = "client.updated"
	AuditClientArchived = "client.archived"

	AuditUserRegistered = "user.registered"
	AuditUserLogin      = "user.login"
	AuditUserLogout     = "user.logout"

	AuditMemberAdded       = "member.added"
	AuditMemberRoleChanged = "member.role_changed"
	AuditMemberRemoved     = "member.removed"

	AuditOrganizationUpdated = "organization.updated"

	AuditIntegrationConnected    = "integration.connected"
	AuditIntegrationDisconnected = "integration.disconnected"
	AuditWebhookReceived         = "webhook.received"

	AuditFileUploaded = "file.uploaded"
)

// Виды писем. Каждому виду соответствует шаблон по умолчанию
// и, опционально, переопределение в email_templates организации.
const (
	EmailKindApprovalRequest     = "approval_request"
	EmailKindApprovalReminder    = "approval_reminder"
	EmailKindApprovalApproved    = "approval_approved"
	EmailKindApprovalChanges     = "approval_changes"
	EmailKindApprovalResubmitted = "approval_resubmitted"
)

var ValidEmailKinds = map[string]bool{
	EmailKindApprovalRequest:     true,
	EmailKindApprovalReminder:    true,
	EmailKindApprovalApproved:    true,
	EmailKindApprovalChanges:     true,
	EmailKindApprovalResubmitted: true,
}

// События внутренних уведомлений (лента и WebSocket).
const (
	NotificationApprovalResponded = "approval_responded"
	NotificationApprovalViewed    = "approval_viewed"
	NotificationApprovalExpiring  = "approval_expiring"
	NotificationReminderSent      = "reminder_sent"
	NotificationFilesChanged      = "files_changed"
)

// Провайдеры внешних интеграций.
const (
	IntegrationProviderMonday  = "monday"
	IntegrationProviderDropbox = "dropbox"
)

var ValidIntegrationProviders = map[string]bool{
	IntegrationProviderMonday:  true,
	IntegrationProviderDropbox: true,
}
