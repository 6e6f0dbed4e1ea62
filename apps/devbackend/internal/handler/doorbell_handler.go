package handler

import (
	"errors"
	"net/http"

	"DoorbellCall/apps/devbackend/internal/dto"
	"DoorbellCall/apps/devbackend/internal/service"
	"DoorbellCall/consts"
	"DoorbellCall/pkg/result"

	"github.com/gin-gonic/gin"
)

// DoorbellLookup 门铃查询
type DoorbellLookup interface {
	Members(code string) ([]string, error)
}

// DoorbellHandler 公开的门铃接口
type DoorbellHandler struct {
	doorbells DoorbellLookup
}

func NewDoorbellHandler(doorbells DoorbellLookup) *DoorbellHandler {
	return &DoorbellHandler{doorbells: doorbells}
}

// Get 查询门铃成员
// @Router /api/public/doorbells/{code} [get]
func (h *DoorbellHandler) Get(c *gin.Context) {
	code := c.Param("code")
	members, err := h.doorbells.Members(code)
	if err != nil {
		if errors.Is(err, service.ErrDoorbellNotFound) {
			result.Fail(c, http.StatusNotFound, consts.CodeDoorbellNotFound)
			return
		}
		result.Fail(c, http.StatusInternalServerError, consts.CodeInternalError)
		return
	}
	result.Success(c, dto.DoorbellResponse{Code: code, MemberStreamIDs: members})
}
