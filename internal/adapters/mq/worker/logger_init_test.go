package worker_test

import "github.com/okian/arcade/pkg/logger"

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}
