package controllers

import (
	"github.com/gin-gonic/gin"

	"github.com/Lakshima2000/paddyHealth-backend/middleware"
)

func getUserID(ctx *gin.Context) (uint, bool) {
	id, ok := ctx.Get(middleware.ContextUserIDKey)
	if !ok {
		return 0, false
	}
	uid, ok := id.(uint)
	return uid, ok && uid != 0
}
