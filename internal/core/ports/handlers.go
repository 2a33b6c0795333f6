package ports

import "github.com/gin-gonic/gin"

type HTTPHandler interface {
	StartBroadcast(c *gin.Context)
	EndBroadcast(c *gin.Context)
	GetSession(c *gin.Context)
	SetLayout(c *gin.Context)
	SetOverlay(c *gin.Context)
	ClearOverlay(c *gin.Context)
	ListSources(c *gin.Context)
	RemoveSource(c *gin.Context)
	AddDestination(c *gin.Context)
	RemoveDestination(c *gin.Context)
	ListDestinations(c *gin.Context)
	StartRecording(c *gin.Context)
	StopRecording(c *gin.Context)
	ListRecordings(c *gin.Context)
}
