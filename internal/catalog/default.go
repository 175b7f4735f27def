package catalog

import (
	"time"

	"github.com/georgeshao/genstudio/pkg/types"
)

var (
	extendedRatios = []string{"1:1", "2:3", "3:2", "3:4", "4:3", "4:5", "5:4", "9:16", "16:9", "21:9"}
	gpt1Ratios     = []string{"1:1", "2:3", "3:2"}
	gpt15Ratios    = []string{"1:1", "2:3", "3:2", "9:16", "16:9"}
	grokRatios     = []string{"1:1", "3:4", "4:3", "9:16", "16:9"}
	omniRatios     = []string{"1:1", "2:3", "3:2", "3:4", "4:3", "9:16", "16:9", "21:9"}
	jimengRatios   = []string{"1:1", "3:4", "4:3", "9:16", "16:9", "21:9"}
	wideTallRatios = []string{"9:16", "16:9"}
)

var (
	videoSuccess = []string{"completed", "succeeded", "success", "done"}
	videoFailure = []string{"failed", "error", "rejected"}
	videoRunning = []string{"processing", "in_progress", "running", "generating"}

	videoStatusFields = [][]string{{"status"}, {"state"}, {"data", "status"}}
	videoURLFields    = [][]string{{"video_url"}, {"url"}, {"uri"}, {"data", "url"}, {"data", "video_url"}}
	videoMessages     = [][]string{{"fail_reason"}, {"error", "message"}, {"data", "fail_reason"}}
	videoJobIDFields  = [][]string{{"id"}, {"data", "id"}, {"task_id"}}
)

// SoraFamily polls /v1/videos/{id}.
var SoraFamily = &Family{
	Name:          "sora",
	StatusPath:    "/v1/videos/{id}",
	Interval:      5 * time.Second,
	StatusFields:  videoStatusFields,
	URLFields:     videoURLFields,
	MessageFields: videoMessages,
	Success:       videoSuccess,
	Failure:       videoFailure,
	Running:       videoRunning,
	FailureLabel:  "failed",
}

// VideoQueryFamily covers the veo, grok and jimeng video models.
var VideoQueryFamily = &Family{
	Name:          "video-query",
	StatusPath:    "/v1/video/query?id={id}",
	Interval:      5 * time.Second,
	StatusFields:  videoStatusFields,
	URLFields:     videoURLFields,
	MessageFields: videoMessages,
	Success:       videoSuccess,
	Failure:       videoFailure,
	Running:       videoRunning,
	FailureLabel:  "failed",
}

// OmniImageFamily polls kling omni-image jobs.
var OmniImageFamily = &Family{
	Name:             "omni-image",
	StatusPath:       "/kling/v1/images/omni-image/{id}",
	Interval:         3 * time.Second,
	StatusFields:     [][]string{{"data", "task_status"}},
	URLFields:        [][]string{{"data", "task_result", "images", "0", "url"}},
	MessageFields:    [][]string{{"data", "task_status_msg"}},
	Success:          []string{"succeed", "succeeded", "completed", "success", "done"},
	Failure:          videoFailure,
	Running:          []string{"processing"},
	FailOnMissingURL: true,
	FailureLabel:     "failed",
	MissingURLLabel:  "no image",
}

const (
	chatCompletionsPath = "/v1/chat/completions"
	videoCreatePath     = "/v1/video/create"
	omniImageCreatePath = "/kling/v1/images/omni-image"
)

func imageModel(id, name string, maxRefs int, ratios, resolutions []string) *Model {
	return &Model{
		ID:            id,
		Name:          name,
		Kind:          types.KindImage,
		Endpoint:      EndpointChat,
		CreatePath:    chatCompletionsPath,
		MaxReferences: maxRefs,
		AspectRatios:  ratios,
		Resolutions:   resolutions,
	}
}

func videoModel(id, name string, family *Family, maxRefs int, ratios []string, options ...types.VideoOption) *Model {
	return &Model{
		ID:            id,
		Name:          name,
		Kind:          types.KindVideo,
		Endpoint:      EndpointVideoJob,
		CreatePath:    videoCreatePath,
		JobIDFields:   videoJobIDFields,
		MaxReferences: maxRefs,
		AspectRatios:  ratios,
		VideoOptions:  options,
		Family:        family,
	}
}

func sd(seconds int) types.VideoOption { return types.VideoOption{Seconds: seconds, Quality: "SD"} }
func hd(seconds int) types.VideoOption { return types.VideoOption{Seconds: seconds, Quality: "HD"} }

// Default returns the catalog of models served by the configured API.
func Default() *Catalog {
	omni := &Model{
		ID:            "kling-image-o1",
		Name:          "Kling Image O1",
		Kind:          types.KindImage,
		Endpoint:      EndpointImageJob,
		CreatePath:    omniImageCreatePath,
		JobIDFields:   [][]string{{"data", "task_id"}, {"task_id"}, {"id"}},
		MaxReferences: 4,
		AspectRatios:  omniRatios,
		Resolutions:   []string{"1K", "2K"},
		Family:        OmniImageFamily,
	}

	return New(
		imageModel("gemini-2.5-flash-image", "Nano Banana", 4, extendedRatios, []string{"AUTO"}),
		imageModel("gemini-3-pro-image-preview", "Nano Banana Pro", 8, extendedRatios, []string{"1K", "2K", "4K"}),
		omni,
		imageModel("gpt-image-1-all", "gpt-image-1", 4, gpt1Ratios, []string{"AUTO"}),
		imageModel("gpt-image-1.5-all", "gpt-image-1.5", 4, gpt15Ratios, []string{"AUTO"}),
		imageModel("grok-4-image", "Grok 4 Image", 4, grokRatios, []string{"AUTO"}),
		imageModel("jimeng-4.5", "Jimeng 4.5", 8, extendedRatios, []string{"2K", "4K"}),

		videoModel("sora-2", "Sora 2", SoraFamily, 1, wideTallRatios, sd(10), sd(15)),
		videoModel("sora-2-pro", "Sora 2 Pro", SoraFamily, 1, wideTallRatios, hd(15), sd(25)),
		videoModel("veo_3_1-fast", "VEO 3.1 FAST", VideoQueryFamily, 2, wideTallRatios, sd(8)),
		videoModel("veo3.1-pro", "VEO 3.1 PRO", VideoQueryFamily, 2, wideTallRatios, hd(8)),
		videoModel("jimeng-video-3.0", "Jimeng Video 3.0", VideoQueryFamily, 1, jimengRatios, sd(5), sd(10)),
		videoModel("grok-video-3", "Grok Video 3", VideoQueryFamily, 2, []string{"9:16", "16:9", "2:3", "3:2", "1:1"}, sd(6)),
	)
}
