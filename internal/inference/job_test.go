package inference

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testTools = ToolConfig{
	PythonBin:            "python3",
	Wav2LipScript:        "/app/inference.py",
	Wav2LipCheckpointDir: "/app/checkpoints",
	EsrganScript:         "/app/Real-ESRGAN/inference_realesrgan_video.py",
	EsrganModel:          "RealESRGAN_x4plus",
}

func TestLipSyncCommand(t *testing.T) {
	dir := "/workspace/1234"
	job, err := NewLipSyncJob(dir, dir+"/v.mp4", dir+"/a.wav", "wav2lip")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "wav2lip.mp4"), job.OutputPath)

	name, args, err := testTools.Command(job)
	require.NoError(t, err)
	assert.Equal(t, "python3", name)
	assert.Equal(t, []string{
		"/app/inference.py",
		"--checkpoint_path", "/app/checkpoints/wav2lip.pth",
		"--face", dir + "/v.mp4",
		"--audio", dir + "/a.wav",
		"--outfile", dir + "/wav2lip.mp4",
	}, args)
}

func TestUpscaleCommand(t *testing.T) {
	dir := "/workspace/1234"

	t.Run("WithFaceEnhance", func(t *testing.T) {
		job, err := NewUpscaleJob(dir, dir+"/input/clip.mp4", 2, true)
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(dir, "clip_out.mp4"), job.OutputPath)

		name, args, err := testTools.Command(job)
		require.NoError(t, err)
		assert.Equal(t, "python3", name)
		assert.Equal(t, []string{
			"/app/Real-ESRGAN/inference_realesrgan_video.py",
			"-i", dir + "/input/clip.mp4",
			"-o", dir,
			"-n", "RealESRGAN_x4plus",
			"-s", "2",
			"--suffix", "out",
			"--face_enhance",
		}, args)
	})

	t.Run("WithoutFaceEnhance", func(t *testing.T) {
		job, err := NewUpscaleJob(dir, dir+"/input/clip.mp4", 1.5, false)
		require.NoError(t, err)

		_, args, err := testTools.Command(job)
		require.NoError(t, err)
		assert.NotContains(t, args, "--face_enhance")
		assert.Contains(t, args, "1.5")
	})
}

func TestJobRejectsValuesOutsideCatalog(t *testing.T) {
	dir := "/workspace/1234"

	_, err := NewLipSyncJob(dir, dir+"/v.mp4", dir+"/a.wav", "wav2lip_gan --help")
	assert.ErrorIs(t, err, ErrInvalidParameter)

	_, err = NewLipSyncJob(dir, dir+"/v.mp4", "", "wav2lip")
	assert.ErrorIs(t, err, ErrInvalidParameter)

	_, err = NewUpscaleJob(dir, dir+"/input/clip.mp4", 7, false)
	assert.ErrorIs(t, err, ErrInvalidParameter)

	_, err = NewUpscaleJob(dir, dir+"/input/my clip.mp4", 2, false)
	assert.ErrorIs(t, err, ErrInvalidParameter)

	_, err = NewLipSyncJob("", "v.mp4", "a.wav", "wav2lip")
	assert.ErrorIs(t, err, ErrInvalidParameter)

	// a job mutated after construction is still checked at the command boundary
	job, err := NewLipSyncJob(dir, dir+"/v.mp4", dir+"/a.wav", "wav2lip")
	require.NoError(t, err)
	job.Checkpoint = "$(id)"
	_, _, err = testTools.Command(job)
	assert.ErrorIs(t, err, ErrInvalidParameter)
}
