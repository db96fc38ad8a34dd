package main

import (
	"github.com/architeacher/svc-event-outbox/internal/runtime"
)

func main() {
	runtime.NewDaemon().Run()
}
