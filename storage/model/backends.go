package model

// Backends groups all storage interfaces used by the application, so a
// single value can be passed around instead of one per store.
type Backends struct {
	Defenses      DefensesStore
	Documents     DocumentsStore
	Approvals     ApprovalsStore
	Certificates  CertificatesStore
	Notifications NotificationsStore
	Tasks         TasksStore
	UploadJobs    UploadJobStore
	Users         UsersStore
	KV            KeyValueStore
}
