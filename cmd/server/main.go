package main

import (
	"context"

	"github.com/llifei/db2023/cmd/server/app"
)

func main() {
	app.MustExecute(context.Background())
}
