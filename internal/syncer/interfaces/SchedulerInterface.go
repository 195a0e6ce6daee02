package interfaces

type SchedulerInterface interface {
	Init()
	Stop()
	Bootstrap() error
}
