/*
Package imageload 实现图像数据集加载策略。

# 概述

每个参与方从输入挂载读取按类别文件夹组织的图像，按配置缩放、裁剪，
最后把样本名、标签和 HWC 像素张量写成 dataset.<codec>。该策略不做
参与方之间的数据交换，协调方只等待所有客户端的完成标记。

# 配置

配置位于 <input>/config.yml 的 fc_image_loader 段：

	fc_image_loader:
	  local_dataset:
	    ds_dir: images
	    image_format: [png, jpg]
	    target_value: folder      # 或 labels.csv / labels.txt
	    sep: ","
	  image_resize: {width: 32, height: 32}
	  image_crop: {x_coordinate: 2, y_coordinate: 2, width: 28, height: 28}

target_value 为标签文件名时，每个类别文件夹内都必须有该文件，
包含 name,label 两列（首行为表头）。

# 支持的格式

png、jpeg、gif、bmp、tiff、webp。文件先按扩展名筛选，再用 mimetype 嗅探内容。
*/
package imageload
